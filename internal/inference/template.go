package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ayusman/mudra/internal/gesture"
)

// DefaultTemperature scales template distances into logits.
const DefaultTemperature = 0.1

var (
	// ErrEmptySequence is returned when a sequence has no real rows.
	ErrEmptySequence = errors.New("inference: empty sequence")
	// ErrUnknownLabel is returned when a template targets a label the
	// label map does not know.
	ErrUnknownLabel = errors.New("inference: unknown label")
)

// TemplateEngine classifies sequences by DTW distance to one recorded
// template per class. Class i's logit is -distance/temperature and the
// confidence is 1/(1+best distance). Classes without a template get a
// logit of negative infinity.
type TemplateEngine struct {
	mu          sync.RWMutex
	labels      *gesture.LabelMap
	templates   map[int][][]float64
	temperature float64
}

// NewTemplateEngine creates an engine with no templates for labels.
func NewTemplateEngine(labels *gesture.LabelMap) *TemplateEngine {
	return &TemplateEngine{
		labels:      labels,
		templates:   make(map[int][][]float64),
		temperature: DefaultTemperature,
	}
}

// SetTemperature changes the distance-to-logit scale. Non-positive values
// are ignored.
func (e *TemplateEngine) SetTemperature(t float64) {
	if t <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.temperature = t
}

// SetTemplate installs the template for label, replacing any previous one.
func (e *TemplateEngine) SetTemplate(label string, rows [][]float64) error {
	i, ok := e.labels.Index(label)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	if len(rows) == 0 {
		return ErrEmptySequence
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[i] = cloneRows(rows)
	return nil
}

// RemoveTemplate drops the template for label.
func (e *TemplateEngine) RemoveTemplate(label string) {
	i, ok := e.labels.Index(label)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.templates, i)
}

// HasTemplate reports whether label has a template.
func (e *TemplateEngine) HasTemplate(label string) bool {
	i, ok := e.labels.Index(label)
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok = e.templates[i]
	return ok
}

// Infer implements Engine.
func (e *TemplateEngine) Infer(ctx context.Context, seq gesture.Sequence) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	rows := seq.Rows()
	if len(rows) == 0 {
		return Output{}, ErrEmptySequence
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.templates) == 0 {
		return Output{}, ErrMissingLogits
	}

	logits := make([]float64, e.labels.Len())
	best := math.Inf(1)
	for i := range logits {
		tmpl, ok := e.templates[i]
		if !ok {
			logits[i] = math.Inf(-1)
			continue
		}
		d := Distance(rows, tmpl)
		logits[i] = -d / e.temperature
		best = min(best, d)
	}

	return Output{Logits: logits, Confidence: 1 / (1 + best)}, nil
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
