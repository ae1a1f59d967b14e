// Package bridge polls snapshot source and publishes each snapshot as one batch write.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ac-xchange/uabridge/acshm"
	"github.com/ac-xchange/uabridge/helpers/atomic_clock"
	"github.com/ac-xchange/uabridge/log2"
	"github.com/ac-xchange/uabridge/metrics"
	"github.com/ac-xchange/uabridge/status"
	"github.com/ac-xchange/uabridge/uabatch"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const DefaultInterval = 100 * time.Millisecond

// ErrSourceLost stops the loop. Source reconnection is not attempted.
var ErrSourceLost = errors.New("bridge: source lost")

type Reader interface {
	Read() (acshm.Snapshot, error)
}

type Loop struct {
	// atomic align
	cycles         uint64
	writeFailures  uint64
	partialWrites  uint64
	nodeRejections uint64
	lastCycleNano  int64
	lastSuccess    atomic_clock.Clock

	Log      *log2.Log
	Source   Reader
	Writer   *uabatch.Writer // nil: read only, nothing is written
	Session  uabatch.Session
	Interval time.Duration
	Status   status.Reporter
	Metrics  *metrics.Metrics
	// OnSnapshot is called with every good snapshot before write.
	OnSnapshot func(*acshm.Snapshot)

	alive    *alive.Alive
	once     sync.Once
	state    uint32
	reported uint32
}

type Stats struct {
	Cycles         uint64
	WriteFailures  uint64
	PartialWrites  uint64
	NodeRejections uint64
	LastCycle      time.Duration
	LastSuccess    time.Time
}

func (self *Loop) init() {
	self.once.Do(func() {
		self.alive = alive.NewAlive()
		if self.Interval <= 0 {
			self.Interval = DefaultInterval
		}
		if self.Status == nil {
			self.Status = status.Noop{}
		}
		self.setState(status.StateIdle)
	})
}

func (self *Loop) State() status.State { return status.State(atomic.LoadUint32(&self.state)) }

// setState tracks every state locally.
// Status sees only Idle, Polling and Stopped, each once per change,
// so a running loop does not publish every cycle.
func (self *Loop) setState(s status.State) {
	if status.State(atomic.SwapUint32(&self.state, uint32(s))) == s {
		return
	}
	self.Metrics.SetState(uint8(s))
	if s == status.StateWritePending {
		return
	}
	if status.State(atomic.SwapUint32(&self.reported, uint32(s))) == s {
		return
	}
	self.Log.Debugf("bridge state=%s", s)
	self.Status.Report(s)
}

// Run polls until source is lost (ErrSourceLost), ctx is done or Stop is called (nil).
// Stop conditions are checked at cycle boundaries, an in-flight write is never cancelled.
// Cycle work time is not subtracted from Interval.
func (self *Loop) Run(ctx context.Context) error {
	self.init()
	if !self.alive.Add(1) {
		return nil
	}
	defer self.alive.Done()
	defer self.alive.Stop()
	defer self.setState(status.StateStopped)

	stopCh := self.alive.StopChan()
	self.Log.Infof("bridge run interval=%v nodes=%d", self.Interval, len(Nodes))
	for {
		select {
		case <-ctx.Done():
			self.Log.Infof("bridge stop: %v", ctx.Err())
			return nil
		case <-stopCh:
			self.Log.Infof("bridge stop requested")
			return nil
		default:
		}

		if err := self.Cycle(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(self.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		case <-stopCh:
			timer.Stop()
		}
	}
}

// Cycle does one read, transform and write.
// Only source failure is returned, write problems are logged and counted.
func (self *Loop) Cycle(ctx context.Context) error {
	self.init()
	start := time.Now()
	defer func() {
		d := time.Since(start)
		atomic.StoreInt64(&self.lastCycleNano, int64(d))
		self.Metrics.Cycle(d)
	}()
	atomic.AddUint64(&self.cycles, 1)
	self.setState(status.StatePolling)

	snap, err := self.Source.Read()
	if err == nil && !snap.OK {
		err = errors.New("snapshot not ok")
	}
	self.Metrics.SourceRead(err == nil)
	if err != nil {
		self.Log.Errorf("bridge source read err=%v", err)
		return errors.Annotatef(errors.Wrap(err, ErrSourceLost), "%v", err)
	}
	if self.OnSnapshot != nil {
		self.OnSnapshot(&snap)
	}
	if self.Writer == nil {
		self.lastSuccess.SetNow()
		return nil
	}

	batch := BuildBatch(&snap)
	self.setState(status.StateWritePending)
	defer self.setState(status.StatePolling)
	writeStart := time.Now()
	outcome, err := self.Writer.Write(context.WithoutCancel(ctx), self.Session, batch)
	writeTime := time.Since(writeStart)
	if err != nil {
		// unreachable with BuildBatch, but not fatal
		self.Log.Errorf("bridge %s", errors.ErrorStack(err))
		atomic.AddUint64(&self.writeFailures, 1)
		return nil
	}
	switch {
	case outcome.AllSucceeded:
		self.lastSuccess.SetNow()
		self.Metrics.Write("ok", writeTime)
	case len(outcome.Results) == 0:
		atomic.AddUint64(&self.writeFailures, 1)
		self.Metrics.Write("transport", writeTime)
	default:
		failed := outcome.Failed()
		atomic.AddUint64(&self.partialWrites, 1)
		atomic.AddUint64(&self.nodeRejections, uint64(len(failed)))
		self.Metrics.Write("rejected", writeTime)
		for _, r := range failed {
			self.Metrics.NodeRejected(r.Node)
		}
	}
	return nil
}

// Stop asks Run to return at next cycle boundary.
func (self *Loop) Stop() {
	self.init()
	self.alive.Stop()
}

// Wait until Run returned. Only valid after Stop or Run exit.
func (self *Loop) Wait() {
	self.init()
	self.alive.Wait()
}

func (self *Loop) Stats() Stats {
	s := Stats{
		Cycles:         atomic.LoadUint64(&self.cycles),
		WriteFailures:  atomic.LoadUint64(&self.writeFailures),
		PartialWrites:  atomic.LoadUint64(&self.partialWrites),
		NodeRejections: atomic.LoadUint64(&self.nodeRejections),
		LastCycle:      time.Duration(atomic.LoadInt64(&self.lastCycleNano)),
	}
	if !self.lastSuccess.IsZero() {
		s.LastSuccess = self.lastSuccess.Time()
	}
	return s
}
