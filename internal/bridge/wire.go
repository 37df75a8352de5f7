// Package bridge speaks the newline-delimited JSON protocol used to reach an
// out-of-process gesture classifier, and serves it for any inference.Engine.
package bridge

import (
	"github.com/ayusman/mudra/internal/detector"
)

// CommandStop asks the peer to end the current session.
const CommandStop = "stop"

// Request carries one window of raw landmarks to the classifier. ID is
// echoed by peers that support it; peers that do not ignore it.
type Request struct {
	ID          uint64        `json:"id,omitempty"`
	Sequence    [][][]float64 `json:"sequence"`
	FrameCount  int           `json:"frame_count"`
	Duration    float64       `json:"duration"`
	TargetLabel string        `json:"target_label"`
}

// Command is a control message.
type Command struct {
	Command string `json:"command"`
}

// Response is the classifier verdict for one Request. ID is zero when the
// peer does not echo request ids.
type Response struct {
	ID          uint64  `json:"id,omitempty"`
	Top1        string  `json:"top1"`
	Top1Prob    float64 `json:"top1_prob"`
	TargetLabel string  `json:"target_label"`
	Prob        float64 `json:"prob"`
	Confidence  float64 `json:"confidence"`
	Match       bool    `json:"match"`
}

// envelope is what the server decodes: either a command or a request.
type envelope struct {
	Command string `json:"command"`
	Request
}

// NewRequest encodes a window of frames. Untracked frames are sent as
// all-zero landmarks.
func NewRequest(frames []detector.Frame, duration float64, target string) Request {
	seq := make([][][]float64, len(frames))
	for i, f := range frames {
		points := make([][]float64, detector.NumLandmarks)
		for j, p := range f.Points {
			if f.Tracked {
				points[j] = []float64{p.X, p.Y, p.Z}
			} else {
				points[j] = []float64{0, 0, 0}
			}
		}
		seq[i] = points
	}
	return Request{
		Sequence:    seq,
		FrameCount:  len(frames),
		Duration:    duration,
		TargetLabel: target,
	}
}

// Frames decodes the landmark window. It reports false when any frame is
// not shaped 21x3. All-zero frames decode as untracked.
func (r Request) Frames() ([]detector.Frame, bool) {
	frames := make([]detector.Frame, len(r.Sequence))
	for i, raw := range r.Sequence {
		if len(raw) != detector.NumLandmarks {
			return nil, false
		}
		f := detector.Frame{TimestampMillis: int64(i)}
		for j, xyz := range raw {
			if len(xyz) != 3 {
				return nil, false
			}
			f.Points[j] = detector.Point3D{X: xyz[0], Y: xyz[1], Z: xyz[2]}
			if xyz[0] != 0 || xyz[1] != 0 || xyz[2] != 0 {
				f.Tracked = true
			}
		}
		frames[i] = f
	}
	return frames, true
}
