// Package acshm reads the racing simulator telemetry feeds from shared memory.
//
// Two regions are written by the simulator process: physics (vehicle
// dynamics) and graphics (session and environment). Source copies both
// records into memory it owns and decodes the copies, producer may rewrite
// the region during copy and that tear is not detected.
package acshm

import (
	"sync"

	"github.com/ac-xchange/uabridge/log2"
	"github.com/ac-xchange/uabridge/shm"
	"github.com/juju/errors"
)

const (
	DefaultPhysicsName  = `Local\acpmf_physics`
	DefaultGraphicsName = `Local\acpmf_graphics`
)

var (
	// ErrSourceUnavailable is returned by Initialize when either region can not be mapped.
	ErrSourceUnavailable = errors.New("acshm: source unavailable")
	ErrNotConnected      = errors.New("acshm: source not connected")
)

type State uint8

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Source owns both mapped regions. Only Source opens and closes them.
type Source struct {
	mu           sync.Mutex
	log          *log2.Log
	opener       shm.Opener
	physicsName  string
	graphicsName string

	state    State
	physics  shm.Region
	graphics shm.Region

	physBuf [PhysicsSize]byte
	grBuf   [GraphicsSize]byte
}

func NewSource(log *log2.Log, opener shm.Opener, physicsName, graphicsName string) *Source {
	if physicsName == "" {
		physicsName = DefaultPhysicsName
	}
	if graphicsName == "" {
		graphicsName = DefaultGraphicsName
	}
	return &Source{
		log:          log,
		opener:       opener,
		physicsName:  physicsName,
		graphicsName: graphicsName,
	}
}

func (self *Source) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state
}

// Initialize maps physics then graphics region.
// On any failure whatever was acquired is released and ErrSourceUnavailable returned.
// Not retried here.
func (self *Source) Initialize() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.state == Connected {
		return nil
	}
	var err error
	self.physics, err = self.opener.Open(self.physicsName, PhysicsSize)
	if err != nil {
		self.physics = nil
		return self.unavailable(err, self.physicsName)
	}
	self.graphics, err = self.opener.Open(self.graphicsName, GraphicsSize)
	if err != nil {
		self.graphics = nil
		return self.unavailable(err, self.graphicsName)
	}
	self.state = Connected
	self.log.Infof("acshm connected physics=%s(%d) graphics=%s(%d)",
		self.physicsName, PhysicsSize, self.graphicsName, GraphicsSize)
	return nil
}

func (self *Source) unavailable(cause error, name string) error {
	self.release()
	self.log.Errorf("acshm initialize region=%s err=%v", name, cause)
	return errors.Annotatef(errors.Wrap(cause, ErrSourceUnavailable), "region=%s (%v)", name, cause)
}

// Read copies both records once and returns normalized snapshot.
// Not connected: Snapshot.OK=false, ErrNotConnected, memory untouched.
func (self *Source) Read() (Snapshot, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.state != Connected || self.physics == nil || self.graphics == nil {
		return Snapshot{}, ErrNotConnected
	}
	if _, err := self.physics.Copy(self.physBuf[:]); err != nil {
		return Snapshot{}, errors.Annotatef(err, "acshm read region=%s", self.physicsName)
	}
	if _, err := self.graphics.Copy(self.grBuf[:]); err != nil {
		return Snapshot{}, errors.Annotatef(err, "acshm read region=%s", self.graphicsName)
	}
	p, err := DecodePhysics(self.physBuf[:])
	if err != nil {
		return Snapshot{}, errors.Trace(err)
	}
	g, err := DecodeGraphics(self.grBuf[:])
	if err != nil {
		return Snapshot{}, errors.Trace(err)
	}
	return NewSnapshot(&p, &g), nil
}

// Cleanup releases graphics then physics. Safe to call many times.
func (self *Source) Cleanup() {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.release()
}

func (self *Source) release() {
	if self.graphics != nil {
		if err := self.graphics.Close(); err != nil {
			self.log.Errorf("acshm close region=%s err=%v", self.graphicsName, err)
		}
		self.graphics = nil
	}
	if self.physics != nil {
		if err := self.physics.Close(); err != nil {
			self.log.Errorf("acshm close region=%s err=%v", self.physicsName, err)
		}
		self.physics = nil
	}
	if self.state == Connected {
		self.log.Infof("acshm disconnected")
	}
	self.state = Disconnected
}
