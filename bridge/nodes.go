package bridge

import (
	"github.com/ac-xchange/uabridge/acshm"
	"github.com/ac-xchange/uabridge/uabatch"
)

// Node binds snapshot field to remote node id.
// Node ids are a wire contract with the server address space, spelling included.
type Node struct {
	ID    string
	Value func(s *acshm.Snapshot) interface{}
}

var Nodes = []Node{
	{"719:Car.speed", func(s *acshm.Snapshot) interface{} { return s.Vehicle.SpeedKmh }},
	{"719:Car.rpm", func(s *acshm.Snapshot) interface{} { return s.Vehicle.EngineRPM }},
	{"719:Car.fuel", func(s *acshm.Snapshot) interface{} { return s.Vehicle.Fuel }},
	{"719:Car.steerAngle", func(s *acshm.Snapshot) interface{} { return s.Vehicle.SteerAngle }},
	{"719:Car.currentGear", func(s *acshm.Snapshot) interface{} { return s.Vehicle.Gear }},
	{"719:Car.gas", func(s *acshm.Snapshot) interface{} { return s.Vehicle.Gas }},
	{"719:Car.brake", func(s *acshm.Snapshot) interface{} { return s.Vehicle.Brake }},
	{"723:GameEnviroment.currentTime", func(s *acshm.Snapshot) interface{} { return s.Times.Current }},
	{"723:GameEnviroment.lastTime", func(s *acshm.Snapshot) interface{} { return s.Times.Last }},
	{"723:GameEnviroment.bestTime", func(s *acshm.Snapshot) interface{} { return s.Times.Best }},
	{"723:GameEnviroment.numberOfLaps", func(s *acshm.Snapshot) interface{} { return s.Env.NumberOfLaps }},
	{"723:GameEnviroment.position", func(s *acshm.Snapshot) interface{} { return s.Env.Position }},
	{"723:GameEnviroment.completedLaps", func(s *acshm.Snapshot) interface{} { return s.Env.CompletedLaps }},
	{"723:GameEnviroment.windSpeed", func(s *acshm.Snapshot) interface{} { return s.Misc.WindSpeed }},
	{"723:GameEnviroment.windDirection", func(s *acshm.Snapshot) interface{} { return s.Misc.WindDirection }},
}

// BuildBatch maps every Nodes entry, in order. Every cycle writes all values, changed or not.
func BuildBatch(s *acshm.Snapshot) *uabatch.Batch {
	b := uabatch.NewBatch(len(Nodes))
	for _, n := range Nodes {
		b.Nodes = append(b.Nodes, n.ID)
		b.Values = append(b.Values, n.Value(s))
	}
	return b
}
