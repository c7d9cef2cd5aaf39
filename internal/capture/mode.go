package capture

import "fmt"

// Mode is the capture mechanism currently feeding a session.
type Mode int32

// Capture modes. A session starts Unstarted and never returns to it.
const (
	ModeUnstarted Mode = iota
	ModeNativeSurface
	ModeWindowCapture
	ModeScreenshotPoll
	ModeExternalStreamTool
)

func (m Mode) String() string {
	switch m {
	case ModeUnstarted:
		return "unstarted"
	case ModeNativeSurface:
		return "native-surface"
	case ModeWindowCapture:
		return "window"
	case ModeScreenshotPoll:
		return "screenshot"
	case ModeExternalStreamTool:
		return "stream-tool"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// Phase is the orchestrator's position in its state machine.
type Phase int

const (
	PhaseTrying Phase = iota
	PhaseActive
	PhaseExhausted
)

// State is Trying(Index), Active(Index) or Exhausted.
type State struct {
	Phase Phase
	Index int
}

func (s State) String() string {
	switch s.Phase {
	case PhaseTrying:
		return fmt.Sprintf("trying(%d)", s.Index)
	case PhaseActive:
		return fmt.Sprintf("active(%d)", s.Index)
	default:
		return "exhausted"
	}
}

// Settled reports whether the orchestrator has either committed to a
// backend or run out of them.
func (s State) Settled() bool {
	return s.Phase != PhaseTrying
}
