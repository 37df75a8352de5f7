// Package session implements the gesture validation state machine: it walks
// a configured list of gestures, collects a window of frames for each,
// classifies it and decides pass, retry, skip or timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayusman/mudra/internal/bridge"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/inference"
)

const tracerName = "github.com/ayusman/mudra/internal/session"

var (
	// ErrNoEngine is returned by Start when no classifier is configured.
	ErrNoEngine = errors.New("session: no classifier configured")
	// ErrNoGestures is returned by Start when no gesture has a label.
	ErrNoGestures = errors.New("session: no gestures configured")
	// ErrClassifierUnavailable is returned by Start when the remote
	// classifier connection is gone.
	ErrClassifierUnavailable = errors.New("session: classifier unavailable")
)

// Remote is an asynchronous classifier reached through bounded queues.
// All methods must be non-blocking. Err reports a transport that can no
// longer carry requests.
type Remote interface {
	Err() error
	Submit(req bridge.Request) error
	SendStop() error
	Poll() (bridge.Response, bool)
	PollStop() (string, bool)
}

// Config holds session behaviour and collaborators.
type Config struct {
	Gestures []string

	Timeout          time.Duration
	RetryOnFailure   bool
	MaxRetryCount    int
	FeedbackDuration time.Duration

	ProbThreshold float64
	ConfThreshold float64

	MinFrames        int
	MinSeconds       float64
	AssumedFPS       float64
	PadMissingFrames bool
	MaxLength        int
	FeatureDim       int

	MinInferenceInterval time.Duration

	// InferenceTimeout bounds one classification: the in-process engine
	// call, or the wait for a remote verdict.
	InferenceTimeout time.Duration

	// Engine classifies windows in process. Remote, when set, is used
	// instead and decisions are resolved on Tick.
	Engine inference.Engine
	Remote Remote
	Labels *gesture.LabelMap

	Now    func() time.Time
	Tracer trace.Tracer
}

// DefaultConfig returns the default session settings without gestures or
// collaborators.
func DefaultConfig() Config {
	return Config{
		Timeout:              10 * time.Second,
		RetryOnFailure:       true,
		MaxRetryCount:        2,
		FeedbackDuration:     2 * time.Second,
		ProbThreshold:        0.6,
		ConfThreshold:        0.5,
		MinFrames:            15,
		MinSeconds:           1.0,
		AssumedFPS:           gesture.DefaultAssumedFPS,
		MaxLength:            gesture.DefaultMaxLength,
		FeatureDim:           gesture.FeatureCount,
		MinInferenceInterval: 250 * time.Millisecond,
		InferenceTimeout:     2 * time.Second,
	}
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	SessionID    string   `json:"session_id,omitempty"`
	Phase        Phase    `json:"phase"`
	Index        int      `json:"index"`
	Label        string   `json:"label,omitempty"`
	Total        int      `json:"total"`
	RetryCount   int      `json:"retry_count"`
	Elapsed      float64  `json:"elapsed"`
	WindowFrames int      `json:"window_frames"`
	Feedback     Feedback `json:"feedback,omitempty"`
	Status       string   `json:"status"`
}

// Session is the gesture validation state machine. It is not safe for
// concurrent use: OnFrame, Tick and the control methods must all be called
// from the goroutine that owns the session.
type Session struct {
	cfg       Config
	policy    gesture.Policy
	window    *gesture.Window
	observers []Observer

	id            string
	phase         Phase
	index         int
	retryCount    int
	gestureStart  time.Time
	feedback      Feedback
	feedbackStart time.Time
	lastInference time.Time
	status        string

	// Remote bookkeeping. requestID numbers submissions, awaiting is the
	// id of the window in Evaluating (0 when none) and inflight counts
	// submissions not yet answered.
	requestID uint64
	awaiting  uint64
	inflight  int
}

// New creates an idle session.
func New(cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.MaxRetryCount < 0 {
		cfg.MaxRetryCount = 0
	}
	if cfg.Labels == nil {
		cfg.Labels = gesture.NewLabelMap(nil)
	}

	return &Session{
		cfg: cfg,
		policy: gesture.Policy{
			ProbThreshold: cfg.ProbThreshold,
			ConfThreshold: cfg.ConfThreshold,
			Labels:        cfg.Labels,
		},
		window: gesture.NewWindow(cfg.AssumedFPS, cfg.PadMissingFrames),
		index:  -1,
		status: "idle",
	}
}

// Subscribe registers an observer. Observers are notified in the order
// they were registered.
func (s *Session) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

// Start begins a new session at the first gesture. Configuration errors are
// logged, leave the session idle and are returned.
func (s *Session) Start() error {
	if s.cfg.Engine == nil && s.cfg.Remote == nil {
		return s.configError(ErrNoEngine)
	}
	if r := s.cfg.Remote; r != nil {
		if err := r.Err(); err != nil {
			return s.configError(fmt.Errorf("%w: %v", ErrClassifierUnavailable, err))
		}
	}
	if s.nextValid(0) < 0 {
		return s.configError(ErrNoGestures)
	}

	s.reset()
	s.id = uuid.NewString()
	log.Printf("session %s: started with %d gestures", s.id, len(s.cfg.Gestures))
	s.emit(Event{Type: EventSessionStarted, Index: -1})
	s.advanceTo(0)
	return nil
}

// Restart reinitializes every counter and starts again from the first
// gesture, whatever the current phase.
func (s *Session) Restart() error {
	log.Printf("session %s: restarting", s.id)
	return s.Start()
}

// Stop ends the session and returns to Idle. reason is reported in the
// status and the session-stopped event.
func (s *Session) Stop(reason string) {
	if reason == "" {
		reason = "stopped"
	}

	if r := s.cfg.Remote; r != nil && s.phase != Idle {
		if err := r.SendStop(); err != nil && !errors.Is(err, bridge.ErrClosed) {
			log.Printf("session %s: send stop: %v", s.id, err)
		}
	}

	log.Printf("session %s: stopped: %s", s.id, reason)
	s.emit(Event{Type: EventSessionStopped, Index: s.index, Label: s.label(), Reason: reason})
	s.reset()
	s.status = "stopped: " + reason
}

// Skip abandons the active gesture and advances to the next one. It reports
// false when no gesture is being attempted.
func (s *Session) Skip() bool {
	if !s.phase.Active() {
		return false
	}

	s.phase = Skipped
	s.window.Clear()
	s.emit(Event{Type: EventGestureResult, Index: s.index, Label: s.label(), Reason: ReasonSkipped})
	s.advanceTo(s.index + 1)
	return true
}

// OnFrame admits one frame. It may run one in-process inference; it never
// returns an error to the frame producer.
func (s *Session) OnFrame(ctx context.Context, f detector.Frame) {
	if !s.phase.Active() {
		return
	}

	now := s.cfg.Now()
	s.window.Accept(f)

	if s.timedOut(now) {
		s.timeout()
		return
	}
	if s.phase == Evaluating {
		return
	}
	if !s.window.IsReady(s.cfg.MinFrames, s.cfg.MinSeconds) {
		return
	}
	if !s.lastInference.IsZero() && now.Sub(s.lastInference) < s.cfg.MinInferenceInterval {
		return
	}

	s.evaluate(ctx, now)
}

// Tick advances timers and resolves remote decisions. Call it once per
// scheduling interval.
func (s *Session) Tick() {
	if r := s.cfg.Remote; r != nil {
		if reason, ok := r.PollStop(); ok {
			s.Stop(reason)
			return
		}
		for {
			resp, ok := r.Poll()
			if !ok {
				break
			}
			s.resolve(resp)
		}
	}

	now := s.cfg.Now()
	switch s.phase {
	case Collecting, Evaluating:
		if s.timedOut(now) {
			s.timeout()
			return
		}
		// A peer may drop a window without answering.
		if s.phase == Evaluating && s.cfg.InferenceTimeout > 0 && now.Sub(s.lastInference) > s.cfg.InferenceTimeout {
			s.abandon()
		}
	case PlayingFeedback:
		if now.Sub(s.feedbackStart) >= s.cfg.FeedbackDuration {
			s.finishFeedback()
		}
	}
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:    s.id,
		Phase:        s.phase,
		Index:        s.index,
		Label:        s.label(),
		Total:        len(s.cfg.Gestures),
		RetryCount:   s.retryCount,
		WindowFrames: s.window.Len(),
		Status:       s.status,
	}
	if s.phase.Active() {
		snap.Elapsed = s.cfg.Now().Sub(s.gestureStart).Seconds()
	}
	if s.phase == PlayingFeedback {
		snap.Feedback = s.feedback
	}
	return snap
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

func (s *Session) evaluate(ctx context.Context, now time.Time) {
	label := s.label()
	duration := s.window.Duration()
	frames := s.window.Drain()
	s.lastInference = now

	// Remote classification is resolved later, on Tick.
	if r := s.cfg.Remote; r != nil {
		s.requestID++
		req := bridge.NewRequest(frames, duration, label)
		req.ID = s.requestID
		if err := r.Submit(req); err != nil {
			log.Printf("session %s: submit window for %s: %v", s.id, label, err)
			return
		}
		s.inflight++
		s.awaiting = req.ID
		s.phase = Evaluating
		return
	}

	ctx, span := s.cfg.Tracer.Start(ctx, "session.evaluate", trace.WithAttributes(
		attribute.String("gesture.label", label),
		attribute.Int("gesture.index", s.index),
		attribute.Int("window.frames", len(frames)),
		attribute.Float64("window.duration", duration),
	))
	defer span.End()

	if s.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InferenceTimeout)
		defer cancel()
	}

	// Build the feature sequence and classify it
	seq := gesture.Assemble(gesture.Features(frames), s.cfg.MaxLength, s.cfg.FeatureDim)
	out, err := s.cfg.Engine.Infer(ctx, seq)
	if err == nil && len(out.Logits) == 0 {
		err = inference.ErrMissingLogits
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("session %s: inference failed for %s: %v", s.id, label, err)
		return
	}

	// A failed decision leaves the session collecting a fresh window
	d := s.policy.Evaluate(out.Logits, out.Confidence, label)
	span.SetAttributes(
		attribute.Bool("decision.pass", d.Pass),
		attribute.Float64("decision.target_prob", d.TargetProb),
		attribute.Float64("decision.confidence", d.Confidence),
		attribute.String("decision.top1", s.cfg.Labels.Label(d.Top1Index)),
	)

	if d.Pass {
		s.pass(d.TargetProb, d.Confidence)
	}
}

// resolve applies a remote verdict to the window awaiting it. Responses to
// abandoned windows, earlier attempts or other gestures are stale and
// dropped.
func (s *Session) resolve(resp bridge.Response) {
	if s.inflight > 0 {
		s.inflight--
	}

	// Peers that do not echo ids answer in order, so the awaited window is
	// the one answered once nothing older is outstanding.
	current := s.awaiting != 0 && resp.ID == s.awaiting
	if resp.ID == 0 {
		current = s.awaiting != 0 && s.inflight == 0
	}
	if s.phase != Evaluating || !current || !strings.EqualFold(resp.TargetLabel, s.label()) {
		log.Printf("session %s: dropping stale response for %q", s.id, resp.TargetLabel)
		return
	}
	s.awaiting = 0

	if s.policy.Verdict(resp.Prob, resp.Confidence) {
		s.pass(resp.Prob, resp.Confidence)
		return
	}
	s.phase = Collecting
}

// abandon gives up on the window awaiting a remote verdict. It counts as a
// failed decision and collection continues; a late reply is dropped.
func (s *Session) abandon() {
	log.Printf("session %s: no verdict for %s within %s, window counted as failed", s.id, s.label(), s.cfg.InferenceTimeout)
	s.awaiting = 0
	s.phase = Collecting
}

func (s *Session) pass(prob, confidence float64) {
	s.phase = Passed
	s.window.Clear()

	label := s.label()
	log.Printf("session %s: gesture %s passed (prob %.2f, confidence %.2f)", s.id, label, prob, confidence)
	s.emit(Event{Type: EventGestureMatched, Index: s.index, Label: label, Success: true})
	s.emit(Event{
		Type:        EventGestureResult,
		Index:       s.index,
		Label:       label,
		Success:     true,
		Probability: prob,
		Confidence:  confidence,
	})
	s.startFeedback(FeedbackSuccess)
}

func (s *Session) timeout() {
	s.phase = Timeout
	s.window.Clear()
	s.awaiting = 0

	// Report the failed attempt
	label := s.label()
	log.Printf("session %s: gesture %s timed out (attempt %d)", s.id, label, s.retryCount+1)
	s.emit(Event{Type: EventGestureResult, Index: s.index, Label: label, Reason: ReasonTimeout})

	// Retry the same gesture while attempts remain, otherwise move on
	if s.cfg.RetryOnFailure && s.retryCount < s.cfg.MaxRetryCount {
		s.phase = Retrying
		s.retryCount++
		s.emit(Event{Type: EventGestureRetry, Index: s.index, Label: label, Attempt: s.retryCount})
		s.startFeedback(FeedbackRetry)
		return
	}

	s.advanceTo(s.index + 1)
}

func (s *Session) startFeedback(tag Feedback) {
	s.window.Clear()
	s.phase = PlayingFeedback
	s.feedback = tag
	s.feedbackStart = s.cfg.Now()
	s.status = fmt.Sprintf("feedback %s for %s", tag, s.label())
	s.emit(Event{Type: EventFeedbackPlaying, Index: s.index, Label: s.label(), Tag: tag})
}

func (s *Session) finishFeedback() {
	tag := s.feedback
	s.feedback = ""
	if tag == FeedbackRetry {
		s.collect()
		return
	}
	s.advanceTo(s.index + 1)
}

// advanceTo begins the first gesture at or after from with a label, or
// completes the session.
func (s *Session) advanceTo(from int) {
	if i := s.nextValid(from); i >= 0 {
		s.index = i
		s.retryCount = 0
		s.collect()
		return
	}

	s.phase = Completed
	s.index = len(s.cfg.Gestures)
	s.window.Clear()
	s.status = "completed"
	log.Printf("session %s: all gestures completed", s.id)
	s.emit(Event{Type: EventAllCompleted, Index: s.index, Success: true})
}

func (s *Session) collect() {
	s.window.Clear()
	s.awaiting = 0
	s.phase = Collecting
	s.gestureStart = s.cfg.Now()
	s.lastInference = time.Time{}
	s.status = fmt.Sprintf("collecting %s (%d/%d)", s.label(), s.index+1, len(s.cfg.Gestures))
}

func (s *Session) nextValid(from int) int {
	for i := max(from, 0); i < len(s.cfg.Gestures); i++ {
		if strings.TrimSpace(s.cfg.Gestures[i]) != "" {
			return i
		}
	}
	return -1
}

func (s *Session) timedOut(now time.Time) bool {
	return s.cfg.Timeout > 0 && now.Sub(s.gestureStart) > s.cfg.Timeout
}

func (s *Session) label() string {
	if s.index >= 0 && s.index < len(s.cfg.Gestures) {
		return strings.TrimSpace(s.cfg.Gestures[s.index])
	}
	return ""
}

func (s *Session) reset() {
	s.window.Clear()
	s.phase = Idle
	s.index = -1
	s.retryCount = 0
	s.feedback = ""
	s.lastInference = time.Time{}
	s.awaiting = 0
	s.status = "idle"
}

func (s *Session) configError(err error) error {
	log.Printf("session: cannot start: %v", err)
	s.reset()
	s.status = "configuration error: " + err.Error()
	return err
}

func (s *Session) emit(e Event) {
	e.SessionID = s.id
	e.Time = s.cfg.Now()
	for _, o := range s.observers {
		o.OnEvent(e)
	}
}
