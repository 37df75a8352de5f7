package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// blurSize is the Gaussian kernel applied before differencing.
	blurSize = 21
	// pixelDiffThreshold is the grey-level change that counts a pixel as moved.
	pixelDiffThreshold = 25
)

// MotionDetector gates hand detection: it compares each frame with the
// previous one and reports the share of pixels that changed.
type MotionDetector struct {
	threshold   float64
	prev        gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a detector that reports motion when more than
// threshold percent of pixels change between frames.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prev:      gocv.NewMat(),
	}
}

// Detect reports whether frame moved relative to the previous frame, and
// the changed-pixel percentage. The first frame only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	// Convert to grayscale
	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	// Apply Gaussian blur to reduce noise
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurSize, Y: blurSize}, 0, 0, gocv.BorderDefault)

	// If first frame, store as baseline
	if !m.initialized {
		blurred.CopyTo(&m.prev)
		m.initialized = true
		return false, 0
	}

	// Calculate absolute difference
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)

	// Apply binary threshold
	moved := gocv.NewMat()
	defer moved.Close()
	gocv.Threshold(diff, &moved, pixelDiffThreshold, 255, gocv.ThresholdBinary)

	// Count changed pixels
	changed := float64(gocv.CountNonZero(moved)) / float64(moved.Rows()*moved.Cols()) * 100.0

	// Update previous frame
	blurred.CopyTo(&m.prev)

	return changed > m.threshold, changed
}

// Reset forgets the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline frame.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prev.Empty() {
		m.prev.Close()
		m.prev = gocv.NewMat()
	}
	m.initialized = false
}

// SetThreshold changes the changed-pixel percentage. Values less than or
// equal to 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}
