package capture

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Frame rates of the motion gate.
const (
	IdleFPS            = 5
	ActiveFPS          = 30
	DefaultIdleTimeout = 2 * time.Second
)

// SourceConfig controls a Source.
type SourceConfig struct {
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration
	// AlwaysActive bypasses the motion gate.
	AlwaysActive    bool
	PreferRightHand bool
	Buffer          int
	Now             func() time.Time
}

// DefaultSourceConfig returns the default motion gate settings.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		IdleFPS:         IdleFPS,
		ActiveFPS:       ActiveFPS,
		IdleTimeout:     DefaultIdleTimeout,
		PreferRightHand: true,
		Buffer:          4,
	}
}

// Source is the live tracker: it reads the camera, runs hand detection
// while motion is present and publishes one landmark frame per reading on
// a single-consumer channel. Readings without a hand become untracked
// frames.
type Source struct {
	camera   Camera
	motion   *MotionDetector
	detector detector.Detector
	cfg      SourceConfig

	frames chan detector.Frame
	active atomic.Bool
}

// NewSource wires a camera, motion gate and detector. motion may be nil
// when cfg.AlwaysActive is set.
func NewSource(camera Camera, motion *MotionDetector, det detector.Detector, cfg SourceConfig) *Source {
	def := DefaultSourceConfig()
	if cfg.IdleFPS <= 0 {
		cfg.IdleFPS = def.IdleFPS
	}
	if cfg.ActiveFPS <= 0 {
		cfg.ActiveFPS = def.ActiveFPS
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if motion == nil {
		cfg.AlwaysActive = true
	}

	return &Source{
		camera:   camera,
		motion:   motion,
		detector: det,
		cfg:      cfg,
		frames:   make(chan detector.Frame, cfg.Buffer),
	}
}

// Frames returns the landmark stream. It is closed when Run returns.
func (s *Source) Frames() <-chan detector.Frame {
	return s.frames
}

// Active reports whether the motion gate is open.
func (s *Source) Active() bool {
	return s.active.Load()
}

// Run captures until ctx is cancelled. The camera is opened on entry and
// closed on exit.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.frames)

	if err := s.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer func() {
		if err := s.camera.Close(); err != nil {
			log.Printf("Error closing camera: %v", err)
		}
	}()

	fps := s.cfg.IdleFPS
	if s.cfg.AlwaysActive {
		fps = s.cfg.ActiveFPS
		s.active.Store(true)
	}
	s.camera.SetFPS(fps)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	lastMotion := s.cfg.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := s.camera.ReadFrame()
		if err != nil {
			log.Printf("Error reading frame: %v", err)
			continue
		}

		now := s.cfg.Now()
		if !s.cfg.AlwaysActive {
			moved, _ := s.motion.Detect(frame)
			switch {
			case moved:
				lastMotion = now
				if !s.active.Load() {
					s.active.Store(true)
					s.retune(ticker, s.cfg.ActiveFPS)
					log.Println("Switched to active mode")
				}
			case s.active.Load() && now.Sub(lastMotion) > s.cfg.IdleTimeout:
				s.active.Store(false)
				s.retune(ticker, s.cfg.IdleFPS)
				log.Println("Switched to idle mode")
			}
		}

		out := detector.Untracked(now.UnixMilli())
		if s.active.Load() {
			hands, err := s.detector.Detect(frame)
			if err != nil {
				log.Printf("Error detecting hands: %v", err)
			} else if hand, ok := detector.Primary(hands, s.cfg.PreferRightHand); ok {
				out = hand.Frame(now.UnixMilli())
			}
		}
		frame.Close()

		select {
		case s.frames <- out:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Source) retune(ticker *time.Ticker, fps int) {
	s.camera.SetFPS(fps)
	ticker.Reset(time.Second / time.Duration(fps))
}
