package acshm

import (
	"encoding/binary"
	"math"

	"github.com/juju/errors"
	"golang.org/x/text/encoding/unicode"
)

var ErrShortRecord = errors.New("acshm: record shorter than layout")

// PhysicsFrame is decoded copy of the physics record, raw units.
type PhysicsFrame struct {
	PacketID   int32
	Gas        float32 // 0..1
	Brake      float32 // 0..1
	Fuel       float32
	Gear       int32 // 0=R 1=N 2+=forward
	EngineRPM  int32
	SteerAngle float32
	SpeedKmh   float32
	TC         float32 // 0..1
	ABS        float32 // 0..1
	AirTemp    float32
	RoadTemp   float32
	Clutch     float32 // 0..1
}

// GraphicsFrame is decoded copy of the graphics record, raw units.
type GraphicsFrame struct {
	PacketID        int32
	Status          int32
	Session         int32
	CurrentTimeText string
	LastTimeText    string
	BestTimeText    string
	SplitText       string
	CompletedLaps   int32
	Position        int32
	ICurrentTime    int32 // ms
	ILastTime       int32 // ms
	IBestTime       int32 // ms
	SessionTimeLeft float32
	IsInPit         int32
	SectorIndex     int32
	LastSectorTime  int32 // ms
	NumberOfLaps    int32
	TyreCompound    string
	WindSpeed       float32
	WindDirection   float32
}

// reader remembers first out of bounds access, later reads return zero values.
type reader struct {
	name string
	b    []byte
	err  error
}

func (r *reader) ok(off, width int) bool {
	if r.err != nil {
		return false
	}
	if off < 0 || width < 0 || off+width > len(r.b) {
		r.err = errors.Annotatef(ErrShortRecord, "%s offset=%d width=%d length=%d", r.name, off, width, len(r.b))
		return false
	}
	return true
}

func (r *reader) i32(off int) int32 {
	if !r.ok(off, 4) {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(r.b[off:]))
}

func (r *reader) f32(off int) float32 {
	if !r.ok(off, 4) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.b[off:]))
}

// wstr decodes NUL terminated UTF-16LE text of at most n code units.
func (r *reader) wstr(off, n int) string {
	if !r.ok(off, n*2) {
		return ""
	}
	raw := r.b[off : off+n*2]
	end := len(raw)
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			end = i
			break
		}
	}
	s, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw[:end])
	if err != nil {
		return ""
	}
	return string(s)
}

func (r *reader) check(size int) {
	if r.err == nil && len(r.b) < size {
		r.err = errors.Annotatef(ErrShortRecord, "%s length=%d expected=%d", r.name, len(r.b), size)
	}
}

func DecodePhysics(b []byte) (PhysicsFrame, error) {
	r := reader{name: PhysicsLayout.Name, b: b}
	r.check(PhysicsSize)
	f := PhysicsFrame{
		PacketID:   r.i32(offPhysPacketID),
		Gas:        r.f32(offPhysGas),
		Brake:      r.f32(offPhysBrake),
		Fuel:       r.f32(offPhysFuel),
		Gear:       r.i32(offPhysGear),
		EngineRPM:  r.i32(offPhysEngineRPM),
		SteerAngle: r.f32(offPhysSteer),
		SpeedKmh:   r.f32(offPhysSpeedKmh),
		TC:         r.f32(offPhysTC),
		ABS:        r.f32(offPhysABS),
		AirTemp:    r.f32(offPhysAirTemp),
		RoadTemp:   r.f32(offPhysRoadTemp),
		Clutch:     r.f32(offPhysClutch),
	}
	if r.err != nil {
		return PhysicsFrame{}, r.err
	}
	return f, nil
}

func DecodeGraphics(b []byte) (GraphicsFrame, error) {
	r := reader{name: GraphicsLayout.Name, b: b}
	r.check(GraphicsSize)
	f := GraphicsFrame{
		PacketID:        r.i32(offGrPacketID),
		Status:          r.i32(offGrStatus),
		Session:         r.i32(offGrSession),
		CurrentTimeText: r.wstr(offGrCurrentTimeStr, timeStrLen),
		LastTimeText:    r.wstr(offGrLastTimeStr, timeStrLen),
		BestTimeText:    r.wstr(offGrBestTimeStr, timeStrLen),
		SplitText:       r.wstr(offGrSplitStr, timeStrLen),
		CompletedLaps:   r.i32(offGrCompletedLaps),
		Position:        r.i32(offGrPosition),
		ICurrentTime:    r.i32(offGrICurrentTime),
		ILastTime:       r.i32(offGrILastTime),
		IBestTime:       r.i32(offGrIBestTime),
		SessionTimeLeft: r.f32(offGrSessionLeft),
		IsInPit:         r.i32(offGrIsInPit),
		SectorIndex:     r.i32(offGrSectorIndex),
		LastSectorTime:  r.i32(offGrLastSectorTime),
		NumberOfLaps:    r.i32(offGrNumberOfLaps),
		TyreCompound:    r.wstr(offGrTyreCompound, tyreCompoundLen),
		WindSpeed:       r.f32(offGrWindSpeed),
		WindDirection:   r.f32(offGrWindDirection),
	}
	if r.err != nil {
		return GraphicsFrame{}, r.err
	}
	return f, nil
}
