package status

import (
	"context"
	"sync"

	"github.com/ac-xchange/uabridge/config"
	"github.com/ac-xchange/uabridge/log2"
	"github.com/juju/errors"
)

type Transporter interface {
	Init(ctx context.Context, log *log2.Log, c config.Status, willPayload []byte) error
	SendState(payload []byte) bool
	Close()
}

// Status contract:
// - Init() fails only with invalid config, network issues ignored
// - Report() never blocks, only latest pending state is delivered
// - Close() delivers pending state then disconnects
type Status struct {
	enabled   bool
	log       *log2.Log
	transport Transporter
	stateCh   chan State
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	last State
}

func (self *Status) Init(ctx context.Context, log *log2.Log, c config.Status) error {
	self.enabled = c.Enabled
	self.log = log.Clone(log2.LInfo)
	if c.MqttLogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}
	if c.MqttBroker == "" {
		return errors.NotValidf("status mqtt_broker empty")
	}

	self.stateCh = make(chan State, 1)
	self.stopCh = make(chan struct{})
	self.doneCh = make(chan struct{})

	willPayload := []byte{byte(StateStopped)}
	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, self.log, c, willPayload); err != nil {
		return errors.Annotate(err, "status transport")
	}

	go self.worker()
	return nil
}

// Report replaces pending undelivered state.
func (self *Status) Report(s State) {
	if !self.enabled {
		return
	}
	self.mu.Lock()
	self.last = s
	self.mu.Unlock()
	for {
		select {
		case self.stateCh <- s:
			return
		default:
		}
		select {
		case <-self.stateCh:
		default:
		}
	}
}

func (self *Status) Last() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.last
}

func (self *Status) Close() {
	if !self.enabled {
		return
	}
	self.closeOnce.Do(func() {
		close(self.stopCh)
		<-self.doneCh
		self.transport.Close()
	})
}

func (self *Status) worker() {
	defer close(self.doneCh)
	for {
		select {
		case s := <-self.stateCh:
			self.send(s)
		case <-self.stopCh:
			select {
			case s := <-self.stateCh:
				self.send(s)
			default:
			}
			return
		}
	}
}

func (self *Status) send(s State) {
	if !self.transport.SendState([]byte{byte(s)}) {
		self.log.Errorf("status send state=%s failed", s)
		return
	}
	self.log.Debugf("status sent state=%s", s)
}
