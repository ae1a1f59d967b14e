// Package status publishes bridge lifecycle state to MQTT broker.
// Payload is single byte State, retained, with Stopped as last will.
package status

type State uint8

const (
	StateInvalid State = iota
	StateIdle
	StatePolling
	StateWritePending
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateWritePending:
		return "write-pending"
	case StateStopped:
		return "stopped"
	}
	return "invalid"
}

type Reporter interface {
	Report(State)
}

// Noop discards states.
type Noop struct{}

func (Noop) Report(State) {}

// Func adapts function to Reporter.
type Func func(State)

func (f Func) Report(s State) { f(s) }
