package inference

import (
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// ErrNoSamples is returned when training is attempted without samples.
var ErrNoSamples = errors.New("inference: no samples provided")

// Trainer turns recorded sample windows into templates.
type Trainer struct {
	// FeatureDim is the row width of produced templates; 0 means
	// gesture.FeatureCount.
	FeatureDim int
}

// NewTrainer creates a new Trainer instance.
func NewTrainer() *Trainer {
	return &Trainer{}
}

// Rows converts a window of frames into feature rows, speed included.
func (t *Trainer) Rows(frames []detector.Frame) [][]float64 {
	vectors := gesture.Features(frames)
	return gesture.Assemble(vectors, len(vectors), t.FeatureDim).Rows()
}

// Train averages sample windows into a single template. Every sample is
// resampled to the length of the first before averaging.
func (t *Trainer) Train(samples [][]detector.Frame) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	var all [][][]float64
	for i, frames := range samples {
		if len(frames) < 2 {
			return nil, fmt.Errorf("sample %d has insufficient frames", i)
		}
		all = append(all, t.Rows(frames))
	}

	targetLength := len(all[0])
	width := len(all[0][0])

	averaged := make([][]float64, targetLength)
	for i := range averaged {
		averaged[i] = make([]float64, width)
	}

	for _, rows := range all {
		resampled := resample(rows, targetLength)
		for i, r := range resampled {
			for k := range averaged[i] {
				averaged[i][k] += r[k]
			}
		}
	}

	n := float64(len(all))
	for _, r := range averaged {
		for k := range r {
			r[k] /= n
		}
	}

	return averaged, nil
}

// resample resamples rows to exactly targetLength rows using linear
// interpolation.
func resample(rows [][]float64, targetLength int) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) == 1 || targetLength <= 1 {
		return [][]float64{rows[0]}
	}

	result := make([][]float64, targetLength)
	for i := range result {
		pos := float64(i) / float64(targetLength-1) * float64(len(rows)-1)

		idx := int(pos)
		if idx >= len(rows)-1 {
			idx = len(rows) - 2
		}
		frac := pos - float64(idx)

		r1, r2 := rows[idx], rows[idx+1]
		out := make([]float64, len(r1))
		for k := range out {
			out[k] = r1[k] + frac*(r2[k]-r1[k])
		}
		result[i] = out
	}

	return result
}
