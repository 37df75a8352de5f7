package session

import "fmt"

// Phase is the state of a gesture session.
type Phase int

// Session phases. Passed, Timeout, Retrying and Skipped are transitional: a
// session moves through them within a single OnFrame, Tick or Skip call.
const (
	Idle Phase = iota
	Collecting
	Evaluating
	Passed
	Timeout
	Retrying
	PlayingFeedback
	Skipped
	Completed
)

var phaseNames = [...]string{
	Idle:            "idle",
	Collecting:      "collecting",
	Evaluating:      "evaluating",
	Passed:          "passed",
	Timeout:         "timeout",
	Retrying:        "retrying",
	PlayingFeedback: "playing_feedback",
	Skipped:         "skipped",
	Completed:       "completed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("session: unknown phase %q", text)
}

// Active reports whether a gesture is being attempted.
func (p Phase) Active() bool {
	return p == Collecting || p == Evaluating
}

// Feedback tags the feedback interval played after an attempt.
type Feedback string

const (
	FeedbackSuccess Feedback = "success"
	FeedbackRetry   Feedback = "retry"
)
