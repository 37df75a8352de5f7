package session

import "time"

// EventType identifies a session event.
type EventType string

const (
	EventSessionStarted  EventType = "session-started"
	EventGestureMatched  EventType = "gesture-matched"
	EventGestureResult   EventType = "gesture-result"
	EventGestureRetry    EventType = "gesture-retry"
	EventFeedbackPlaying EventType = "feedback-playing"
	EventAllCompleted    EventType = "all-gestures-completed"
	EventSessionStopped  EventType = "session-stopped"
)

// Event is published to observers on every observable transition.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`

	Index   int    `json:"index"`
	Label   string `json:"label,omitempty"`
	Success bool   `json:"success"`

	// Attempt is the retry number for gesture-retry events.
	Attempt int `json:"attempt,omitempty"`
	// Tag is set for feedback-playing events.
	Tag Feedback `json:"tag,omitempty"`
	// Reason is set for session-stopped and skipped or timed out results.
	Reason string `json:"reason,omitempty"`

	// Probability and Confidence describe the deciding window of a
	// successful result.
	Probability float64 `json:"probability,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Observer receives session events. Observers run on the session goroutine
// in subscription order and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Result reasons.
const (
	ReasonTimeout = "timeout"
	ReasonSkipped = "skipped"
)
