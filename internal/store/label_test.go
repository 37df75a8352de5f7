package store

import (
	"testing"

	"github.com/ayusman/mudra/internal/gesture"
)

func TestLabelRepository_Replace(t *testing.T) {
	s := newTestStore(t)
	repo := s.Labels()

	if err := repo.Replace(gesture.NewLabelMap([]string{"fist", "", "thumbs_up"})); err != nil {
		t.Fatalf("failed to replace labels: %v", err)
	}

	labels, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list labels: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(labels))
	}
	if labels[1].ClassIndex != 2 || labels[1].Label != "thumbs_up" {
		t.Errorf("unexpected second label: %+v", labels[1])
	}

	t.Run("replace drops previous labels", func(t *testing.T) {
		if err := repo.Replace(gesture.NewLabelMap([]string{"open_palm"})); err != nil {
			t.Fatalf("failed to replace labels: %v", err)
		}
		labels, err := repo.List()
		if err != nil {
			t.Fatalf("failed to list labels: %v", err)
		}
		if len(labels) != 1 || labels[0].Label != "open_palm" {
			t.Errorf("expected only open_palm, got %+v", labels)
		}
	})
}

func TestLabelRepository_Replace_DuplicateRollsBack(t *testing.T) {
	s := newTestStore(t)
	repo := s.Labels()

	if err := repo.Replace(gesture.NewLabelMap([]string{"fist"})); err != nil {
		t.Fatalf("failed to replace labels: %v", err)
	}

	err := repo.Replace(gesture.NewLabelMap([]string{"open_palm", "OPEN_PALM"}))
	if err == nil {
		t.Fatal("expected error for labels differing only in case")
	}

	labels, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list labels: %v", err)
	}
	if len(labels) != 1 || labels[0].Label != "fist" {
		t.Errorf("expected previous labels to survive, got %+v", labels)
	}
}

func TestLabelRepository_LabelMap(t *testing.T) {
	s := newTestStore(t)
	repo := s.Labels()

	t.Run("empty", func(t *testing.T) {
		m, err := repo.LabelMap()
		if err != nil {
			t.Fatalf("failed to load label map: %v", err)
		}
		if m.Len() != 0 {
			t.Errorf("expected empty label map, got %d classes", m.Len())
		}
	})

	t.Run("gaps preserved", func(t *testing.T) {
		if err := repo.Replace(gesture.NewLabelMap([]string{"fist", "", "thumbs_up"})); err != nil {
			t.Fatalf("failed to replace labels: %v", err)
		}

		m, err := repo.LabelMap()
		if err != nil {
			t.Fatalf("failed to load label map: %v", err)
		}
		if m.Len() != 3 {
			t.Fatalf("expected 3 classes, got %d", m.Len())
		}
		if i, ok := m.Index("Thumbs_Up"); !ok || i != 2 {
			t.Errorf("expected thumbs_up at index 2, got %d %v", i, ok)
		}
		if m.Label(1) != "1" {
			t.Errorf("expected gap to render as its index, got %q", m.Label(1))
		}
	})
}
