package playback

// State is the playback mode
type State int32

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the controller
type Status struct {
	State         State
	Obfuscating   bool
	FramesRead    int64
	FramesWritten int64
}
