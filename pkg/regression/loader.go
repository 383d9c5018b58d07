package regression

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// YAML schemas for the model and range resources.
type modelFile struct {
	SVM struct {
		Kernel         string      `yaml:"kernel"`
		Gamma          float64     `yaml:"gamma"`
		Rho            float64     `yaml:"rho"`
		Coefficients   []float64   `yaml:"coefficients"`
		SupportVectors [][]float64 `yaml:"support_vectors"`
	} `yaml:"svm"`
}

type rangeFile struct {
	Range struct {
		Lower float64   `yaml:"lower"`
		Upper float64   `yaml:"upper"`
		Min   []float64 `yaml:"min"`
		Max   []float64 `yaml:"max"`
	} `yaml:"range"`
}

// LoadModel reads a trained RBF-SVR model from a YAML file. Any missing
// file, parse failure or schema violation fails with an ErrModelLoad
// wrapped error.
func LoadModel(path string) (*SVR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrModelLoad, path, err)
	}

	var f modelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrModelLoad, path, err)
	}

	svm := f.SVM
	if svm.Kernel != "rbf" {
		return nil, fmt.Errorf("%w: unsupported kernel %q in %s", ErrModelLoad, svm.Kernel, path)
	}
	if len(svm.SupportVectors) == 0 {
		return nil, fmt.Errorf("%w: no support vectors in %s", ErrModelLoad, path)
	}

	cols := len(svm.SupportVectors[0])
	if cols == 0 {
		return nil, fmt.Errorf("%w: empty support vector row in %s", ErrModelLoad, path)
	}
	for i, row := range svm.SupportVectors {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: support vector %d has width %d, expected %d",
				ErrModelLoad, i, len(row), cols)
		}
	}
	if len(svm.Coefficients) != len(svm.SupportVectors) {
		return nil, fmt.Errorf("%w: %d coefficients for %d support vectors in %s",
			ErrModelLoad, len(svm.Coefficients), len(svm.SupportVectors), path)
	}

	sv := mat.NewDense(len(svm.SupportVectors), cols, nil)
	for i, row := range svm.SupportVectors {
		sv.SetRow(i, row)
	}

	model, err := NewSVR(svm.Gamma, svm.Rho, svm.Coefficients, sv)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("supportVectors", len(svm.SupportVectors)).
		Int("dims", cols).
		Msg("Loaded regression model")

	return model, nil
}

// LoadRange reads a feature range table from a YAML file. Fails with an
// ErrModelLoad wrapped error on any parse or schema problem.
func LoadRange(path string) (*RangeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrModelLoad, path, err)
	}

	var f rangeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrModelLoad, path, err)
	}

	r := f.Range
	if len(r.Min) == 0 {
		return nil, fmt.Errorf("%w: empty range table in %s", ErrModelLoad, path)
	}
	if len(r.Min) != len(r.Max) {
		return nil, fmt.Errorf("%w: %d min bounds vs %d max bounds in %s",
			ErrModelLoad, len(r.Min), len(r.Max), path)
	}
	if r.Lower >= r.Upper {
		return nil, fmt.Errorf("%w: invalid target interval [%g, %g] in %s",
			ErrModelLoad, r.Lower, r.Upper, path)
	}

	table, err := NewRangeTable(r.Lower, r.Upper, r.Min, r.Max)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("dims", table.Len()).
		Msg("Loaded feature range table")

	return table, nil
}
