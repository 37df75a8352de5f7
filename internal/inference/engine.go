// Package inference defines the classifier contract used by a gesture
// session and provides an in-process template classifier.
package inference

import (
	"context"
	"errors"

	"github.com/ayusman/mudra/internal/gesture"
)

// ErrMissingLogits is returned when a backend produced no class logits.
var ErrMissingLogits = errors.New("inference: missing logits")

// Output is the raw classifier result for one sequence.
type Output struct {
	Logits     []float64
	Confidence float64
}

// Engine classifies an assembled feature sequence. Implementations must be
// safe to call from the session goroutine while other goroutines update
// their model state.
type Engine interface {
	Infer(ctx context.Context, seq gesture.Sequence) (Output, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, seq gesture.Sequence) (Output, error)

// Infer calls f.
func (f EngineFunc) Infer(ctx context.Context, seq gesture.Sequence) (Output, error) {
	return f(ctx, seq)
}
