package regression

import "fmt"

// RangeTable holds per-dimension min/max bounds used to rescale raw
// feature vectors into the [Lower, Upper] training interval. Loaded
// once, immutable, and shared read-only across scoring calls.
type RangeTable struct {
	Lower, Upper float64
	Min, Max     []float64
}

// NewRangeTable builds a table after checking that the bound slices
// agree in length.
func NewRangeTable(lower, upper float64, min, max []float64) (*RangeTable, error) {
	if len(min) != len(max) {
		return nil, fmt.Errorf("%w: %d min bounds vs %d max bounds",
			ErrDimensionMismatch, len(min), len(max))
	}
	return &RangeTable{Lower: lower, Upper: upper, Min: min, Max: max}, nil
}

// Len returns the number of feature dimensions the table covers.
func (t *RangeTable) Len() int {
	return len(t.Min)
}

// Normalize linearly rescales each dimension from [Min_i, Max_i] into
// [Lower, Upper], clamping to the interval. A degenerate dimension
// (Max_i == Min_i) maps to the interval midpoint rather than dividing
// by zero. Fails with ErrDimensionMismatch when the vector and table
// lengths differ.
func (t *RangeTable) Normalize(raw []float64) ([]float64, error) {
	if len(raw) != t.Len() {
		return nil, fmt.Errorf("%w: %d features vs %d range entries",
			ErrDimensionMismatch, len(raw), t.Len())
	}

	out := make([]float64, len(raw))
	for i, v := range raw {
		span := t.Max[i] - t.Min[i]
		if span == 0 {
			out[i] = (t.Lower + t.Upper) / 2
			continue
		}
		n := t.Lower + (t.Upper-t.Lower)*(v-t.Min[i])/span
		if n < t.Lower {
			n = t.Lower
		}
		if n > t.Upper {
			n = t.Upper
		}
		out[i] = n
	}
	return out, nil
}
