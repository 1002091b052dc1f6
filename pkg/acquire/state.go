package acquire

// State is the streaming state of a Controller.
type State int32

const (
	Idle State = iota
	Connecting
	Streaming
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
