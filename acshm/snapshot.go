package acshm

import "fmt"

// NoTime is formatted lap time when nothing is recorded.
const NoTime = "--:--.---"

// FormatTime formats milliseconds as MM:SS.mmm, ms<=0 as NoTime.
// Minutes above 99 widen the result, producer never reports such laps.
func FormatTime(ms int32) string {
	if ms <= 0 {
		return NoTime
	}
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
}

// Percent converts 0..1 ratio to integer percent, truncated toward zero.
func Percent(f float32) int32 { return int32(f * 100) }

// HumanGear converts stored gear (0=R 1=N 2+=forward) to N=0 R=-1.
func HumanGear(raw int32) int32 { return raw - 1 }

type Vehicle struct {
	SpeedKmh   int32
	EngineRPM  int32
	Fuel       int32
	SteerAngle int32 // raw*100
	Gear       int32
	Gas        int32 // percent
	Brake      int32 // percent
	Clutch     int32 // percent
	TC         int32 // percent
	ABS        int32 // percent
}

type Env struct {
	NumberOfLaps  int32
	Position      int32
	CompletedLaps int32
	CurrentLap    int32
	Status        int32
	Session       int32
	IsInPit       bool
	SectorIndex   int32
}

// Times are formatted, NoTime when not recorded.
type Times struct {
	Current    string
	Last       string
	Best       string
	LastSector string
	Split      string // producer text
}

type Misc struct {
	WindSpeed     float32
	WindDirection float32
	AirTemp       float32
	RoadTemp      float32
}

// Snapshot is one normalized read of both feeds.
// When OK is false all other fields are zero and must not be used.
// PhysicsPacket and GraphicsPacket come from independent feeds, a one tick skew between them is possible.
type Snapshot struct {
	OK             bool
	Vehicle        Vehicle
	Env            Env
	Times          Times
	Misc           Misc
	TyreCompound   string
	PhysicsPacket  int32
	GraphicsPacket int32
}

func NewSnapshot(p *PhysicsFrame, g *GraphicsFrame) Snapshot {
	return Snapshot{
		OK: true,
		Vehicle: Vehicle{
			SpeedKmh:   int32(p.SpeedKmh),
			EngineRPM:  p.EngineRPM,
			Fuel:       int32(p.Fuel),
			SteerAngle: int32(p.SteerAngle * 100),
			Gear:       HumanGear(p.Gear),
			Gas:        Percent(p.Gas),
			Brake:      Percent(p.Brake),
			Clutch:     Percent(p.Clutch),
			TC:         Percent(p.TC),
			ABS:        Percent(p.ABS),
		},
		Env: Env{
			NumberOfLaps:  g.NumberOfLaps,
			Position:      g.Position,
			CompletedLaps: g.CompletedLaps,
			CurrentLap:    g.CompletedLaps + 1,
			Status:        g.Status,
			Session:       g.Session,
			IsInPit:       g.IsInPit != 0,
			SectorIndex:   g.SectorIndex,
		},
		Times: Times{
			Current:    FormatTime(g.ICurrentTime),
			Last:       FormatTime(g.ILastTime),
			Best:       FormatTime(g.IBestTime),
			LastSector: FormatTime(g.LastSectorTime),
			Split:      g.SplitText,
		},
		Misc: Misc{
			WindSpeed:     g.WindSpeed,
			WindDirection: g.WindDirection,
			AirTemp:       p.AirTemp,
			RoadTemp:      p.RoadTemp,
		},
		TyreCompound:   g.TyreCompound,
		PhysicsPacket:  p.PacketID,
		GraphicsPacket: g.PacketID,
	}
}
