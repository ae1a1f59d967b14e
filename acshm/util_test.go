package acshm_test

import (
	"encoding/binary"
	"math"
	"testing"
	"unicode/utf16"

	"github.com/ac-xchange/uabridge/acshm"
)

// frame writes named fields into record bytes, like the producer does.
type frame struct {
	t      testing.TB
	layout *acshm.Layout
	b      []byte
}

func newFrame(t testing.TB, l *acshm.Layout) *frame {
	return &frame{t: t, layout: l, b: make([]byte, l.Size)}
}

func (f *frame) field(name string, kind acshm.Kind) acshm.Field {
	fd, ok := f.layout.Field(name)
	if !ok {
		f.t.Fatalf("layout=%s unknown field=%s", f.layout.Name, name)
	}
	if fd.Kind != kind {
		f.t.Fatalf("layout=%s field=%s kind=%s expected=%s", f.layout.Name, name, fd.Kind, kind)
	}
	return fd
}

func (f *frame) i32(name string, v int32) *frame {
	fd := f.field(name, acshm.KindInt32)
	binary.LittleEndian.PutUint32(f.b[fd.Offset:], uint32(v))
	return f
}

func (f *frame) f32(name string, v float32) *frame {
	fd := f.field(name, acshm.KindFloat32)
	binary.LittleEndian.PutUint32(f.b[fd.Offset:], math.Float32bits(v))
	return f
}

func (f *frame) wstr(name string, s string) *frame {
	fd := f.field(name, acshm.KindWChar)
	units := utf16.Encode([]rune(s))
	if len(units) >= fd.Count {
		f.t.Fatalf("field=%s text too long", name)
	}
	for i := 0; i < fd.Count; i++ {
		var u uint16
		if i < len(units) {
			u = units[i]
		}
		binary.LittleEndian.PutUint16(f.b[fd.Offset+i*2:], u)
	}
	return f
}

func testPhysics(t testing.TB) *frame {
	return newFrame(t, &acshm.PhysicsLayout).
		i32("packetId", 1001).
		f32("gas", 0.456).
		f32("brake", 0.1).
		f32("fuel", 41.9).
		i32("gear", 4).
		i32("engineRPM", 7250).
		f32("steerAngle", -0.256).
		f32("speedKmh", 187.6).
		f32("tc", 0.3).
		f32("abs", 1).
		f32("airTemp", 24.5).
		f32("roadTemp", 31.25).
		f32("clutch", 0)
}

func testGraphics(t testing.TB) *frame {
	return newFrame(t, &acshm.GraphicsLayout).
		i32("packetId", 2002).
		i32("status", 2).
		i32("session", 1).
		wstr("currentTime", "1:05:432").
		wstr("split", "0:31:100").
		i32("completedLaps", 4).
		i32("position", 3).
		i32("iCurrentTime", 65432).
		i32("iLastTime", 0).
		i32("iBestTime", 83007).
		i32("isInPit", 0).
		i32("currentSectorIndex", 1).
		i32("lastSectorTime", 31100).
		i32("numberOfLaps", 10).
		wstr("tyreCompound", "Soft (S)").
		f32("windSpeed", 3.5).
		f32("windDirection", 270.25)
}
