// Package quality implements two image quality assessment metrics: a
// no-reference metric built on natural scene statistics of gradient
// magnitude and Laplacian of Gaussian responses (GMLOG), and a
// full-reference metric comparing singular value spectra of small image
// blocks (BlockSVD). Both expose one-shot package functions and
// stateful instances bound to a trained model or a reference image.
package quality

import (
	"fmt"
	"image"
	"strings"
)

// Scalar holds up to four per-channel quality values. Unused trailing
// slots are left at zero.
type Scalar [4]float64

// String formats the scalar in bracketed per-channel form.
func (s Scalar) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Metric is the capability shared by the quality algorithms: score a
// single image and report a stable algorithm identifier.
type Metric interface {
	// Compute scores one input image, returning up to four per-channel
	// values.
	Compute(img image.Image) (Scalar, error)

	// DefaultName returns the stable algorithm identifier.
	DefaultName() string
}

// Both algorithms satisfy Metric.
var (
	_ Metric = (*GMLOG)(nil)
	_ Metric = (*BlockSVD)(nil)
)

// QualityMap holds per-block quality values on the block grid: W by H
// cells, each covering a BlockW by BlockH pixel region of the source.
type QualityMap struct {
	W, H           int
	BlockW, BlockH int
	Values         []float64
}

// NewQualityMap creates a zeroed map with the given block grid size.
func NewQualityMap(w, h, blockW, blockH int) *QualityMap {
	return &QualityMap{
		W:      w,
		H:      h,
		BlockW: blockW,
		BlockH: blockH,
		Values: make([]float64, w*h),
	}
}

// At returns the quality value of the block at grid position (bx, by).
func (m *QualityMap) At(bx, by int) float64 {
	return m.Values[by*m.W+bx]
}
