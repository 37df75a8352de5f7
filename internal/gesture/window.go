package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// DefaultAssumedFPS is used to estimate window duration before two
// timestamps are available.
const DefaultAssumedFPS = 30.0

// Window accumulates frames for one evaluation attempt. Timestamps inside
// the window never decrease.
type Window struct {
	assumedFPS float64
	padMissing bool
	frames     []detector.Frame
}

// NewWindow creates an empty window. When padMissing is set, untracked
// frames are kept as zero-filled placeholders instead of being ignored.
func NewWindow(assumedFPS float64, padMissing bool) *Window {
	if assumedFPS <= 0 {
		assumedFPS = DefaultAssumedFPS
	}
	return &Window{assumedFPS: assumedFPS, padMissing: padMissing}
}

// Accept admits a frame and reports the resulting count and duration.
func (w *Window) Accept(f detector.Frame) (int, float64) {
	if !f.Tracked {
		if !w.padMissing {
			return w.Len(), w.Duration()
		}
		f = detector.Untracked(f.TimestampMillis)
	}

	if n := len(w.frames); n > 0 && f.TimestampMillis < w.frames[n-1].TimestampMillis {
		f.TimestampMillis = w.frames[n-1].TimestampMillis
	}

	w.frames = append(w.frames, f)
	return w.Len(), w.Duration()
}

// Len returns the number of buffered frames.
func (w *Window) Len() int {
	return len(w.frames)
}

// Duration returns the window length in seconds: the timestamp span once
// two frames are held, otherwise count / assumed FPS.
func (w *Window) Duration() float64 {
	n := len(w.frames)
	if n >= 2 {
		return float64(w.frames[n-1].TimestampMillis-w.frames[0].TimestampMillis) / 1000.0
	}
	return float64(n) / w.assumedFPS
}

// RequiredFrames returns the frame count a window needs to cover
// minSeconds at the assumed frame rate, but never less than minFrames.
func (w *Window) RequiredFrames(minFrames int, minSeconds float64) int {
	need := int(math.Ceil(minSeconds * w.assumedFPS))
	if minFrames > need {
		return minFrames
	}
	return need
}

// IsReady reports whether the window holds enough frames spanning enough time.
func (w *Window) IsReady(minFrames int, minSeconds float64) bool {
	return w.Len() >= w.RequiredFrames(minFrames, minSeconds) && w.Duration() >= minSeconds
}

// Frames returns a copy of the buffered frames without clearing them.
func (w *Window) Frames() []detector.Frame {
	out := make([]detector.Frame, len(w.frames))
	copy(out, w.frames)
	return out
}

// Drain returns the buffered frames and empties the window.
func (w *Window) Drain() []detector.Frame {
	out := w.frames
	w.frames = nil
	return out
}

// Clear empties the window.
func (w *Window) Clear() {
	w.frames = nil
}

// Features returns the feature sequence of the buffered frames.
func (w *Window) Features() []Vector {
	return Features(w.frames)
}
