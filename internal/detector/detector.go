package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect.
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// ScriptPath overrides the location of mediapipe_service.py.
	ScriptPath string

	// IdleShutdown stops the tracking subprocess after this long without a
	// Detect call. Zero disables the idle shutdown.
	IdleShutdown time.Duration
}

// DefaultConfig returns a Config tuned for single-hand gesture validation.
func DefaultConfig() Config {
	return Config{
		MaxHands:      1,
		MinConfidence: 0.5,
		IdleShutdown:  30 * time.Second,
	}
}

// Primary picks the hand a validation session follows: the highest scoring
// hand, preferring preferRight on ties. ok is false when hands is empty.
func Primary(hands []HandLandmarks, preferRight bool) (HandLandmarks, bool) {
	if len(hands) == 0 {
		return HandLandmarks{}, false
	}

	best := hands[0]
	for _, h := range hands[1:] {
		switch {
		case h.Score > best.Score:
			best = h
		case h.Score == best.Score && preferRight && h.Handedness == "Right":
			best = h
		}
	}
	return best, true
}
