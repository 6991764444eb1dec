package relay

// State is the lifecycle stage of a Relay
type State int32

const (
	StateBootstrap State = iota
	StateSteadyPoll
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateSteadyPoll:
		return "steady_poll"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
