// Package regression provides the trained scoring back end shared by
// the quality metrics: an RBF support vector regressor, the per-feature
// range normalization applied before prediction, and the YAML loader
// for model and range files.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sentinel errors for the regression stage. Producers wrap them with
// context; callers check with errors.Is.
var (
	// ErrModelLoad indicates a missing, unreadable or malformed model
	// or range resource.
	ErrModelLoad = errors.New("model load failed")

	// ErrDimensionMismatch indicates a feature vector whose length does
	// not match the range table or model input width.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrPrediction indicates a failure of the underlying predictor.
	ErrPrediction = errors.New("prediction failed")
)

// Predictor maps a normalized feature vector to a scalar quality score.
// Implementations must be safe for concurrent use after construction.
type Predictor interface {
	// Predict returns the score for one feature vector.
	Predict(features []float64) (float64, error)

	// Dims returns the expected feature vector length.
	Dims() int
}

// SVR is an epsilon support vector regressor with an RBF kernel, the
// model family used by the trained quality models. All fields are fixed
// at construction and the predictor is read-only afterwards, so a single
// instance may be shared across concurrent scoring calls.
type SVR struct {
	// Gamma is the RBF kernel width parameter.
	Gamma float64

	// Rho is the decision function offset.
	Rho float64

	// Coeffs holds the dual coefficients, one per support vector.
	Coeffs []float64

	// SV stores the support vectors as rows.
	SV *mat.Dense
}

// NewSVR builds a regressor from kernel parameters and support vectors.
// The support vector matrix must have one row per coefficient.
func NewSVR(gamma, rho float64, coeffs []float64, sv *mat.Dense) (*SVR, error) {
	rows, _ := sv.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("%w: no support vectors", ErrModelLoad)
	}
	if len(coeffs) != rows {
		return nil, fmt.Errorf("%w: %d coefficients for %d support vectors",
			ErrModelLoad, len(coeffs), rows)
	}
	return &SVR{Gamma: gamma, Rho: rho, Coeffs: coeffs, SV: sv}, nil
}

// Dims returns the expected feature vector length.
func (s *SVR) Dims() int {
	_, cols := s.SV.Dims()
	return cols
}

// Predict evaluates the decision function
// sum_i c_i * exp(-gamma * ||sv_i - x||^2) - rho.
func (s *SVR) Predict(features []float64) (float64, error) {
	rows, cols := s.SV.Dims()
	if len(features) != cols {
		return 0, fmt.Errorf("%w: got %d features, model expects %d",
			ErrPrediction, len(features), cols)
	}

	sum := 0.0
	for i := 0; i < rows; i++ {
		sv := s.SV.RawRowView(i)
		dist := 0.0
		for j, x := range features {
			d := sv[j] - x
			dist += d * d
		}
		sum += s.Coeffs[i] * math.Exp(-s.Gamma*dist)
	}
	score := sum - s.Rho

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: non-finite score", ErrPrediction)
	}
	return score, nil
}
