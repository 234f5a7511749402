package player

type State int

const (
	StateIdle State = iota
	StateSourceOpening
	StatePreBuffering
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSourceOpening:
		return "opening"
	case StatePreBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) Icon() string {
	switch s {
	case StatePlaying:
		return "▶"
	case StatePaused:
		return "⏸"
	case StateSourceOpening, StatePreBuffering:
		return "⏳"
	case StateStopped:
		return "⏹"
	default:
		return "○"
	}
}

// PlaybackState is the command-visible part of the controller, guarded by
// the controller's video lock.
type PlaybackState struct {
	VideoPath     string
	StopRequested bool
	Paused        bool
	Loop          bool
	Buffering     bool
	// FPS <= 0 means the source's native rate
	FPS float64

	// Pending work for the next playback tick
	Seek          *float64
	ImagePath     *string
	SourceChanged bool
	ClearPending  bool

	// Bumped by every command that replaces or stops the video
	Generation uint64
}
