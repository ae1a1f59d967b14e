package status

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"time"

	"github.com/ac-xchange/uabridge/config"
	"github.com/ac-xchange/uabridge/helpers"
	"github.com/ac-xchange/uabridge/log2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

const defaultNetworkTimeout = 30 * time.Second

type transportMqtt struct {
	log      *log2.Log
	m        mqtt.Client
	mopt     *mqtt.ClientOptions
	stopCh   chan struct{}
	topic    string
	sendWait time.Duration
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, c config.Status, willPayload []byte) error {
	self.log = log
	mqttLog := log.Clone(log2.LDebug)
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if c.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	self.topic = c.Topic
	self.stopCh = make(chan struct{})

	networkTimeout := helpers.IntSecondDefault(c.NetworkTimeoutSec, defaultNetworkTimeout)
	if networkTimeout < 1*time.Second {
		networkTimeout = 1 * time.Second
	}
	connectTimeout := networkTimeout * 3
	self.sendWait = networkTimeout

	tlsconf := new(tls.Config)
	if c.TlsCaFile != "" {
		cabytes, err := ioutil.ReadFile(c.TlsCaFile)
		if err != nil {
			return errors.Annotatef(err, "status tls_ca_file=%s", c.TlsCaFile)
		}
		tlsconf.RootCAs = x509.NewCertPool()
		if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
			return errors.NotValidf("status tls_ca_file=%s no PEM certificates", c.TlsCaFile)
		}
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(c.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topic, willPayload, 1, true).
		SetCleanSession(true).
		SetClientID(c.ClientID).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(networkTimeout / 2).
		SetMaxReconnectInterval(connectTimeout).
		SetOrderMatters(false).
		SetPingTimeout(networkTimeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(networkTimeout)
	if c.MqttUsername != "" {
		self.mopt.SetUsername(c.MqttUsername).SetPassword(c.MqttPassword)
	}
	self.m = mqtt.NewClient(self.mopt)

	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	close(self.stopCh)
	if self.m.IsConnected() {
		self.m.Disconnect(uint(self.mopt.PingTimeout / time.Millisecond))
	}
}

func (self *transportMqtt) SendState(payload []byte) bool {
	if !self.m.IsConnected() {
		self.log.Debugf("status sendstate payload=%x not connected", payload)
		return false
	}
	t := self.m.Publish(self.topic, 1, true, payload)
	return self.tokenWait(t, "publish state") == nil
}

func (self *transportMqtt) online() {
	for self.isRunning() {
		self.log.Debugf("status connect before")
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			self.log.Infof("status connected broker=%s topic=%s", self.mopt.Servers[0], self.topic)
			return
		}
		select {
		case <-time.After(1 * time.Second):
		case <-self.stopCh:
			return
		}
	}
}

func (self *transportMqtt) isRunning() bool {
	select {
	case <-self.stopCh:
		return false
	default:
		return true
	}
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.sendWait) {
		err := errors.Errorf("%s timeout", tag)
		self.log.Errorf("status: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("status: MQTT %s", err.Error())
		return err
	}
	return nil
}
