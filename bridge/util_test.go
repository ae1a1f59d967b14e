package bridge_test

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/ac-xchange/uabridge/acshm"
	"github.com/ac-xchange/uabridge/shm"
	"github.com/ac-xchange/uabridge/status"
	"github.com/gopcua/opcua/ua"
	"github.com/juju/errors"
)

type fakeSession struct {
	mu       sync.Mutex
	requests []*ua.WriteRequest
	reply    func(req *ua.WriteRequest) (*ua.WriteResponse, error)
}

func (self *fakeSession) Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
	self.mu.Lock()
	self.requests = append(self.requests, req)
	self.mu.Unlock()
	if self.reply != nil {
		return self.reply(req)
	}
	return replyStatuses(req, nil), nil
}

func (self *fakeSession) count() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.requests)
}

// replyStatuses accepts every node except listed in bad.
func replyStatuses(req *ua.WriteRequest, bad map[int]ua.StatusCode) *ua.WriteResponse {
	resp := &ua.WriteResponse{
		ResponseHeader: &ua.ResponseHeader{ServiceResult: ua.StatusOK},
		Results:        make([]ua.StatusCode, len(req.NodesToWrite)),
	}
	for i, st := range bad {
		resp.Results[i] = st
	}
	return resp
}

// scriptReader returns snapshots in order, then err forever.
type scriptReader struct {
	snaps []acshm.Snapshot
	reads int
	err   error
}

func (self *scriptReader) Read() (acshm.Snapshot, error) {
	self.reads++
	if self.reads <= len(self.snaps) {
		return self.snaps[self.reads-1], nil
	}
	if self.err == nil {
		return acshm.Snapshot{}, acshm.ErrNotConnected
	}
	return acshm.Snapshot{}, self.err
}

type stateLog struct {
	mu     sync.Mutex
	states []status.State
}

func (self *stateLog) Report(s status.State) {
	self.mu.Lock()
	self.states = append(self.states, s)
	self.mu.Unlock()
}

func (self *stateLog) get() []status.State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]status.State(nil), self.states...)
}

func testSnapshot() acshm.Snapshot {
	return acshm.NewSnapshot(
		&acshm.PhysicsFrame{
			Gas: 0.456, Brake: 0.1, Fuel: 41.9, Gear: 4, EngineRPM: 7250,
			SteerAngle: -0.256, SpeedKmh: 187.6,
		},
		&acshm.GraphicsFrame{
			CompletedLaps: 4, Position: 3, NumberOfLaps: 10,
			ICurrentTime: 65432, ILastTime: 0, IBestTime: 83007,
			WindSpeed: 3.5, WindDirection: 270.25,
		},
	)
}

type memFeed struct {
	phys *shm.MemRegion
	gr   *shm.MemRegion
}

func newMemFeed() *memFeed {
	return &memFeed{
		phys: shm.NewMemRegion(acshm.DefaultPhysicsName, make([]byte, acshm.PhysicsSize)),
		gr:   shm.NewMemRegion(acshm.DefaultGraphicsName, make([]byte, acshm.GraphicsSize)),
	}
}

func (self *memFeed) opener() *shm.MemOpener { return shm.NewMemOpener(self.phys, self.gr) }

func putField(r *shm.MemRegion, l *acshm.Layout, name string, v interface{}) {
	f, ok := l.Field(name)
	if !ok {
		panic(errors.NotFoundf("field=%s", name))
	}
	r.Update(func(b []byte) {
		switch x := v.(type) {
		case int32:
			binary.LittleEndian.PutUint32(b[f.Offset:], uint32(x))
		case float32:
			binary.LittleEndian.PutUint32(b[f.Offset:], math.Float32bits(x))
		default:
			panic(errors.NotSupportedf("type %T", v))
		}
	})
}

func (self *memFeed) physics(name string, v interface{}) {
	putField(self.phys, &acshm.PhysicsLayout, name, v)
}
func (self *memFeed) graphics(name string, v interface{}) {
	putField(self.gr, &acshm.GraphicsLayout, name, v)
}
