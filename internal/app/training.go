package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
)

// TemplateTrainer turns stored samples into templates for the local
// template classifier and keeps the store and the engine in step.
type TemplateTrainer struct {
	store   *store.Store
	engine  *inference.TemplateEngine
	trainer *inference.Trainer
}

// NewTemplateTrainer creates a trainer producing featureDim-wide template
// rows. A featureDim of zero keeps the natural feature width.
func NewTemplateTrainer(s *store.Store, engine *inference.TemplateEngine, featureDim int) *TemplateTrainer {
	return &TemplateTrainer{
		store:   s,
		engine:  engine,
		trainer: &inference.Trainer{FeatureDim: featureDim},
	}
}

// Train averages every stored sample of label into a template, installs it
// in the engine and persists it.
func (t *TemplateTrainer) Train(ctx context.Context, label string) (*store.Template, error) {
	samples, err := t.store.Samples().ListByLabel(label)
	if err != nil {
		return nil, fmt.Errorf("list samples for %q: %w", label, err)
	}

	windows := make([][]detector.Frame, 0, len(samples))
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full, err := t.store.Samples().GetByID(s.ID)
		if err != nil {
			return nil, fmt.Errorf("load sample %d: %w", s.ID, err)
		}
		windows = append(windows, full.Frames)
	}

	rows, err := t.trainer.Train(windows)
	if err != nil {
		return nil, fmt.Errorf("train %q: %w", label, err)
	}

	if err := t.engine.SetTemplate(label, rows); err != nil {
		return nil, fmt.Errorf("install template %q: %w", label, err)
	}

	tmpl := &store.Template{Label: label, SampleCount: len(windows), Rows: rows}
	if err := t.store.Templates().Save(tmpl); err != nil {
		return nil, fmt.Errorf("save template %q: %w", label, err)
	}

	log.Printf("trained %q from %d samples", label, len(windows))
	return tmpl, nil
}

// Forget removes the template for label from the store and the engine.
func (t *TemplateTrainer) Forget(label string) error {
	t.engine.RemoveTemplate(label)
	return t.store.Templates().Delete(label)
}

// LoadTemplates installs every stored template into the engine. Templates
// for labels the engine does not know are skipped. It returns the number
// installed.
func (t *TemplateTrainer) LoadTemplates() (int, error) {
	templates, err := t.store.Templates().List()
	if err != nil {
		return 0, fmt.Errorf("list templates: %w", err)
	}

	n := 0
	for _, tmpl := range templates {
		if err := t.engine.SetTemplate(tmpl.Label, tmpl.Rows); err != nil {
			if errors.Is(err, inference.ErrUnknownLabel) {
				log.Printf("skipping template for unknown label %q", tmpl.Label)
				continue
			}
			return n, fmt.Errorf("install template %q: %w", tmpl.Label, err)
		}
		n++
	}
	return n, nil
}
