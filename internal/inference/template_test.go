package inference

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

func window(hand detector.HandLandmarks, n int) []detector.Frame {
	frames := make([]detector.Frame, n)
	for i := range frames {
		frames[i] = hand.Frame(int64(i * 33))
	}
	return frames
}

func sequenceOf(frames []detector.Frame) gesture.Sequence {
	return gesture.Assemble(gesture.Features(frames), gesture.DefaultMaxLength, gesture.FeatureCount)
}

func trainedEngine(t *testing.T) *TemplateEngine {
	t.Helper()

	labels := gesture.NewLabelMap([]string{"fist", "open_palm", "thumbs_up"})
	engine := NewTemplateEngine(labels)
	trainer := NewTrainer()

	for label, hand := range map[string]detector.HandLandmarks{
		"fist":      detector.FistLandmarks(),
		"open_palm": detector.OpenPalmLandmarks(),
	} {
		if err := engine.SetTemplate(label, trainer.Rows(window(hand, 10))); err != nil {
			t.Fatalf("SetTemplate(%s) error = %v", label, err)
		}
	}
	return engine
}

func TestTemplateEngine_Infer(t *testing.T) {
	engine := trainedEngine(t)

	out, err := engine.Infer(context.Background(), sequenceOf(window(detector.OpenPalmLandmarks(), 12)))
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	if len(out.Logits) != 3 {
		t.Fatalf("expected 3 logits, got %d", len(out.Logits))
	}
	if top, _ := gesture.ArgMax(out.Logits); top != 1 {
		t.Errorf("expected open_palm to win, got class %d (%v)", top, out.Logits)
	}
	if !math.IsInf(out.Logits[2], -1) {
		t.Errorf("expected untrained class to have -Inf logit, got %f", out.Logits[2])
	}
	if out.Confidence < 0.99 {
		t.Errorf("expected near-exact match confidence, got %f", out.Confidence)
	}

	probs := gesture.Softmax(out.Logits)
	if probs[2] != 0 {
		t.Errorf("expected zero probability for untrained class, got %f", probs[2])
	}
}

func TestTemplateEngine_PolicyPasses(t *testing.T) {
	engine := trainedEngine(t)
	policy := gesture.Policy{ProbThreshold: 0.6, ConfThreshold: 0.5, Labels: gesture.NewLabelMap([]string{"fist", "open_palm", "thumbs_up"})}

	out, err := engine.Infer(context.Background(), sequenceOf(window(detector.FistLandmarks(), 8)))
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	if d := policy.Evaluate(out.Logits, out.Confidence, "fist"); !d.Pass {
		t.Errorf("expected fist to pass, got %+v", d)
	}
	if d := policy.Evaluate(out.Logits, out.Confidence, "open_palm"); d.Pass {
		t.Errorf("expected open_palm to fail, got %+v", d)
	}
}

func TestTemplateEngine_Errors(t *testing.T) {
	labels := gesture.NewLabelMap([]string{"fist"})
	engine := NewTemplateEngine(labels)
	seq := sequenceOf(window(detector.FistLandmarks(), 3))

	t.Run("no templates", func(t *testing.T) {
		if _, err := engine.Infer(context.Background(), seq); !errors.Is(err, ErrMissingLogits) {
			t.Errorf("expected ErrMissingLogits, got %v", err)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		if err := engine.SetTemplate("wave", [][]float64{{1}}); !errors.Is(err, ErrUnknownLabel) {
			t.Errorf("expected ErrUnknownLabel, got %v", err)
		}
	})

	t.Run("empty template", func(t *testing.T) {
		if err := engine.SetTemplate("fist", nil); !errors.Is(err, ErrEmptySequence) {
			t.Errorf("expected ErrEmptySequence, got %v", err)
		}
	})

	t.Run("empty sequence", func(t *testing.T) {
		if _, err := engine.Infer(context.Background(), gesture.Assemble(nil, 10, 0)); !errors.Is(err, ErrEmptySequence) {
			t.Errorf("expected ErrEmptySequence, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := engine.Infer(ctx, seq); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestTemplateEngine_RemoveTemplate(t *testing.T) {
	engine := trainedEngine(t)

	if !engine.HasTemplate("FIST") {
		t.Fatal("expected fist template")
	}
	engine.RemoveTemplate("fist")
	if engine.HasTemplate("fist") {
		t.Error("expected fist template to be removed")
	}
}

func TestTemplateEngine_TemplateIsCopied(t *testing.T) {
	engine := NewTemplateEngine(gesture.NewLabelMap([]string{"fist"}))
	rows := [][]float64{{1, 2}, {3, 4}}

	if err := engine.SetTemplate("fist", rows); err != nil {
		t.Fatalf("SetTemplate() error = %v", err)
	}
	rows[0][0] = 100

	seq := gesture.Sequence{Values: [][]float64{{1, 2}, {3, 4}}, Mask: []float64{1, 1}, Length: 2}
	out, err := engine.Infer(context.Background(), seq)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if out.Logits[0] != 0 {
		t.Errorf("expected exact match after caller mutation, got logit %f", out.Logits[0])
	}
}
