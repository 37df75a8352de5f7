package gesture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseLabelMap(t *testing.T) {
	t.Run("case-insensitive lookup", func(t *testing.T) {
		m, err := ParseLabelMap([]byte(`{"0":"fist","1":"open_palm"}`))
		if err != nil {
			t.Fatalf("ParseLabelMap() error = %v", err)
		}

		if got := m.Labels(); !reflect.DeepEqual(got, []string{"fist", "open_palm"}) {
			t.Errorf("Labels() = %v", got)
		}
		if i, ok := m.Index("FIST"); !ok || i != 0 {
			t.Errorf("Index(FIST) = %d, %v", i, ok)
		}
		if i, ok := m.Index(" Open_Palm "); !ok || i != 1 {
			t.Errorf("Index(Open_Palm) = %d, %v", i, ok)
		}
	})

	t.Run("malformed entries skipped", func(t *testing.T) {
		m, err := ParseLabelMap([]byte(`{"x":"wave","1":"peace","2":7,"-1":"neg","3":""}`))
		if err != nil {
			t.Fatalf("ParseLabelMap() error = %v", err)
		}

		if m.Len() != 2 {
			t.Fatalf("expected 2 classes, got %d", m.Len())
		}
		if _, ok := m.Index("wave"); ok {
			t.Error("expected non-numeric key to be skipped")
		}
		if i, ok := m.Index("peace"); !ok || i != 1 {
			t.Errorf("Index(peace) = %d, %v", i, ok)
		}
		if got := m.Label(0); got != "0" {
			t.Errorf("expected gap to read as its index, got %q", got)
		}
	})

	t.Run("invalid document yields empty map", func(t *testing.T) {
		m, err := ParseLabelMap([]byte(`not json`))
		if err == nil {
			t.Fatal("expected error")
		}
		if m == nil || m.Len() != 0 {
			t.Errorf("expected empty map, got %v", m)
		}
	})
}

func TestLabelMap_Label(t *testing.T) {
	m := NewLabelMap([]string{"fist", "open_palm"})

	if got := m.Label(1); got != "open_palm" {
		t.Errorf("Label(1) = %q", got)
	}
	if got := m.Label(5); got != "5" {
		t.Errorf("Label(5) = %q", got)
	}

	var nilMap *LabelMap
	if nilMap.Len() != 0 {
		t.Error("expected nil map to be empty")
	}
	if _, ok := nilMap.Index("fist"); ok {
		t.Error("expected nil map lookup to miss")
	}
}

func TestLoadLabelMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.json")
	want := NewLabelMap([]string{"fist", "open_palm", "thumbs_up"})

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := LoadLabelMap(path)
	if err != nil {
		t.Fatalf("LoadLabelMap() error = %v", err)
	}
	if !reflect.DeepEqual(got.Labels(), want.Labels()) {
		t.Errorf("Labels() = %v, want %v", got.Labels(), want.Labels())
	}

	if _, err := LoadLabelMap(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
