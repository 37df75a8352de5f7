package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/session"
)

// DefaultTickInterval is how often the runner advances session timers.
const DefaultTickInterval = 50 * time.Millisecond

// ErrNotRunning is returned by control calls when the runner loop is not
// running.
var ErrNotRunning = errors.New("app: session runner not running")

// FrameObserver receives every frame delivered to the session. It runs on
// the runner goroutine and must not block.
type FrameObserver interface {
	OnFrame(detector.Frame)
}

type command struct {
	fn    func(*session.Session) error
	reply chan error
}

// Runner owns a session: it is the only goroutine that touches it. Frames,
// timer ticks and control commands are serialized through one loop, and a
// snapshot is republished after each of them for lock-free readers.
type Runner struct {
	sess   *session.Session
	frames <-chan detector.Frame
	tick   time.Duration

	cmds    chan command
	done    chan struct{}
	running atomic.Bool
	snap    atomic.Pointer[session.Snapshot]

	frameObservers []FrameObserver
}

// NewRunner creates a runner for sess fed by frames. frames may be nil when
// there is no live tracker.
func NewRunner(sess *session.Session, frames <-chan detector.Frame, tick time.Duration) *Runner {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	r := &Runner{
		sess:   sess,
		frames: frames,
		tick:   tick,
		cmds:   make(chan command),
		done:   make(chan struct{}),
	}
	r.publish()
	return r
}

// ObserveFrames registers o. It must be called before Run.
func (r *Runner) ObserveFrames(o FrameObserver) {
	r.frameObservers = append(r.frameObservers, o)
}

// Run drives the session until ctx is cancelled. A Runner can only be run
// once.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("app: session runner already started")
	}
	defer close(r.done)

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	frames := r.frames
	for {
		select {
		case <-ctx.Done():
			if p := r.sess.Phase(); p != session.Idle && p != session.Completed {
				r.sess.Stop("shutdown")
				r.publish()
			}
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			for _, o := range r.frameObservers {
				o.OnFrame(f)
			}
			r.sess.OnFrame(ctx, f)
			r.publish()

		case <-ticker.C:
			r.sess.Tick()
			r.publish()

		case c := <-r.cmds:
			c.reply <- c.fn(r.sess)
			r.publish()
		}
	}
}

func (r *Runner) publish() {
	snap := r.sess.Snapshot()
	r.snap.Store(&snap)
}

// Snapshot returns the state published after the last processed input.
func (r *Runner) Snapshot() session.Snapshot {
	return *r.snap.Load()
}

func (r *Runner) do(ctx context.Context, fn func(*session.Session) error) error {
	if !r.running.Load() {
		return ErrNotRunning
	}

	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case r.cmds <- c:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins a new session run.
func (r *Runner) Start(ctx context.Context) error {
	return r.do(ctx, func(s *session.Session) error { return s.Start() })
}

// Restart stops any run in progress and starts again from the first gesture.
func (r *Runner) Restart(ctx context.Context) error {
	return r.do(ctx, func(s *session.Session) error { return s.Restart() })
}

// Stop ends the run in progress with reason.
func (r *Runner) Stop(ctx context.Context, reason string) error {
	return r.do(ctx, func(s *session.Session) error {
		s.Stop(reason)
		return nil
	})
}

// Skip records the current gesture as skipped. It reports whether a
// gesture was skipped.
func (r *Runner) Skip(ctx context.Context) (bool, error) {
	var skipped bool
	err := r.do(ctx, func(s *session.Session) error {
		skipped = s.Skip()
		return nil
	})
	return skipped, err
}
