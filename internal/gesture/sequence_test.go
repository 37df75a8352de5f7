package gesture

import (
	"testing"

	"pgregory.net/rapid"
)

func vectorsOf(n int) []Vector {
	out := make([]Vector, n)
	for i := range out {
		out[i][0] = float64(i + 1)
	}
	return out
}

func TestAssemble(t *testing.T) {
	t.Run("short sequence is left aligned", func(t *testing.T) {
		seq := Assemble(vectorsOf(3), 5, FeatureCount)

		if seq.Length != 3 {
			t.Errorf("expected length 3, got %d", seq.Length)
		}
		if len(seq.Values) != 5 || len(seq.Mask) != 5 {
			t.Fatalf("expected 5 rows, got %d values and %d mask", len(seq.Values), len(seq.Mask))
		}
		want := []float64{1, 1, 1, 0, 0}
		for i, m := range seq.Mask {
			if m != want[i] {
				t.Errorf("mask[%d] = %f, want %f", i, m, want[i])
			}
		}
		if seq.Values[0][0] != 1 || seq.Values[2][0] != 3 {
			t.Errorf("unexpected row order: %v", seq.Values[:3])
		}
		if seq.Values[3][0] != 0 {
			t.Errorf("expected zero padding, got %f", seq.Values[3][0])
		}
	})

	t.Run("long sequence keeps the most recent rows", func(t *testing.T) {
		seq := Assemble(vectorsOf(8), 5, FeatureCount)

		if seq.Length != 5 {
			t.Errorf("expected length 5, got %d", seq.Length)
		}
		if seq.Values[0][0] != 4 || seq.Values[4][0] != 8 {
			t.Errorf("expected rows 4..8, got first %f last %f", seq.Values[0][0], seq.Values[4][0])
		}
	})

	t.Run("wider feature dimension pads columns", func(t *testing.T) {
		seq := Assemble(vectorsOf(1), 2, FeatureCount+4)

		if len(seq.Values[0]) != FeatureCount+4 {
			t.Fatalf("expected %d columns, got %d", FeatureCount+4, len(seq.Values[0]))
		}
		if seq.Values[0][FeatureCount+3] != 0 {
			t.Error("expected extra columns to be zero")
		}
	})

	t.Run("default feature dimension", func(t *testing.T) {
		seq := Assemble(nil, 2, 0)
		if len(seq.Values[0]) != FeatureCount {
			t.Errorf("expected %d columns, got %d", FeatureCount, len(seq.Values[0]))
		}
		if seq.Length != 0 || len(seq.Rows()) != 0 {
			t.Error("expected no real rows")
		}
	})

	t.Run("rows do not alias", func(t *testing.T) {
		seq := Assemble(vectorsOf(2), 2, 3)
		seq.Values[0] = append(seq.Values[0], 99)

		if seq.Values[1][0] != 2 {
			t.Errorf("expected append on row 0 not to touch row 1, got %f", seq.Values[1][0])
		}
	})
}

func TestProperty_AssembleMask(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 250).Draw(rt, "vectors")
		maxLength := rapid.IntRange(1, 120).Draw(rt, "maxLength")

		seq := Assemble(vectorsOf(n), maxLength, FeatureCount)

		want := min(n, maxLength)
		var sum float64
		for i, m := range seq.Mask {
			sum += m
			if (i < want) != (m == 1) {
				rt.Fatalf("mask[%d] = %f with %d real rows", i, m, want)
			}
		}
		if int(sum) != want || seq.Length != want {
			rt.Fatalf("mask sum %f, length %d, want %d", sum, seq.Length, want)
		}
		if want > 0 && seq.Values[want-1][0] != float64(n) {
			rt.Fatalf("expected last real row to be the newest vector")
		}
	})
}
