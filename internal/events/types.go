package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeLog uint32 = iota + 1
	TypeModeChanged
	TypeSessionCreated
	TypeSessionClosed
	TypeLogEntry
	TypeSessionMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Publisher is the publishing half of Bus, injected into producers.
type Publisher interface {
	Publish(ev Event)
}

// Kind classifies a LogEvent for viewers.
type Kind string

// Log event kinds.
const (
	KindInfo  Kind = "info"
	KindError Kind = "error"
	KindDebug Kind = "debug"
	KindFrame Kind = "frame"
)

// Timestamp formats t the way every event carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// LogEvent is a human-readable line about a capture session, streamed to viewers.
type LogEvent struct {
	Kind        Kind   `json:"type" enum:"info,error,debug,frame" example:"info" doc:"Event kind"`
	Message     string `json:"message" example:"fbsimctl: stream attributes 1179x2556" doc:"Log message"`
	Identity    string `json:"udid,omitempty" example:"6A1F6F0B-9C1E-4D8B-9A57-4E3E4C9B1D2A" doc:"Simulator identity"`
	Backend     string `json:"backend,omitempty" example:"surface" doc:"Capture backend that produced the event"`
	FrameNumber uint64 `json:"frame_number,omitempty" example:"300" doc:"Frame count for frame events"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for LogEvent.
func (e LogEvent) Type() uint32 { return TypeLog }

// ModeChangedEvent is published when a session commits to a capture backend
// or runs out of backends.
type ModeChangedEvent struct {
	Identity  string `json:"udid" doc:"Simulator identity"`
	Mode      string `json:"mode" example:"native-surface" doc:"Capture mode label"`
	State     string `json:"state" example:"active(0)" doc:"Orchestrator state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ModeChangedEvent.
func (e ModeChangedEvent) Type() uint32 { return TypeModeChanged }

// SessionCreatedEvent is published when a session is registered.
type SessionCreatedEvent struct {
	SessionID string  `json:"session_id" doc:"Session identifier"`
	Identity  string  `json:"udid" doc:"Simulator identity"`
	FPS       int     `json:"fps" doc:"Requested frame rate"`
	Quality   float64 `json:"quality" doc:"Requested JPEG quality"`
	Timestamp string  `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionCreatedEvent.
func (e SessionCreatedEvent) Type() uint32 { return TypeSessionCreated }

// SessionClosedEvent is published when a session leaves the registry.
type SessionClosedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Identity  string `json:"udid" doc:"Simulator identity"`
	Reason    string `json:"reason,omitempty" doc:"Why the session ended"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionClosedEvent.
func (e SessionClosedEvent) Type() uint32 { return TypeSessionClosed }

// LogEntryEvent represents an application log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
	Line       string         `json:"line" doc:"Entry rendered as one display line"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// SessionMetricsEvent carries a session's measured rates for dashboards.
type SessionMetricsEvent struct {
	Identity  string `json:"udid" doc:"Simulator identity"`
	Mode      string `json:"mode" example:"native-surface" doc:"Capture mode label"`
	FPS       string `json:"fps" example:"29.97" doc:"Measured frames per second"`
	Frames    string `json:"frames" example:"1800" doc:"Frames captured"`
	Dropped   string `json:"dropped" example:"12" doc:"Frames replaced before delivery"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionMetricsEvent.
func (e SessionMetricsEvent) Type() uint32 { return TypeSessionMetrics }
