package quality

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"xquality/pkg/nss"
	"xquality/pkg/plane"
	"xquality/pkg/regression"
)

// GMLOGName is the stable algorithm identifier for the GMLOG metric.
const GMLOGName = "xquality.gmlog"

// GMLOG is the no-reference metric: per-channel NSS features are range
// normalized and scored by a trained regressor. Scores range from 0
// (best quality) to 100 (worst) and are deliberately not clamped, so
// extreme distortions may exceed 100. Instances are read-only after
// construction and safe for concurrent Compute calls.
type GMLOG struct {
	model  regression.Predictor
	ranges *regression.RangeTable
}

// NewGMLOG binds a pre-loaded model and range table. Fails with
// ErrDimensionMismatch when the table length does not match the model's
// input width.
func NewGMLOG(model regression.Predictor, ranges *regression.RangeTable) (*GMLOG, error) {
	if ranges.Len() != model.Dims() {
		return nil, fmt.Errorf("%w: range table has %d entries, model expects %d",
			ErrDimensionMismatch, ranges.Len(), model.Dims())
	}
	return &GMLOG{model: model, ranges: ranges}, nil
}

// NewGMLOGFromFiles loads the model and range resources from YAML files
// and binds them. Fails with ErrModelLoad when either resource is
// missing or malformed.
func NewGMLOGFromFiles(modelPath, rangePath string) (*GMLOG, error) {
	model, err := regression.LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	ranges, err := regression.LoadRange(rangePath)
	if err != nil {
		return nil, err
	}
	return NewGMLOG(model, ranges)
}

// DefaultName returns the stable algorithm identifier.
func (g *GMLOG) DefaultName() string {
	return GMLOGName
}

// Compute scores the image. Grayscale input fills only the first slot;
// colour input fills one slot per colour channel plus a trailing slot
// for the derived luma plane. The alpha plane of 4-channel input is not
// scored. Channels are scored concurrently; each call owns its own
// transient state, so concurrent calls on a shared instance do not
// interfere.
func (g *GMLOG) Compute(img image.Image) (Scalar, error) {
	start := time.Now()

	planes, err := plane.ChannelsWithLuma(img)
	if err != nil {
		return Scalar{}, err
	}
	scored := scoredPlanes(planes)

	var result Scalar
	errs := make([]error, len(scored))
	var wg sync.WaitGroup
	for i, p := range scored {
		wg.Add(1)
		go func(slot int, p *plane.Plane) {
			defer wg.Done()
			score, err := g.scorePlane(p)
			if err != nil {
				errs[slot] = err
				return
			}
			result[slot] = score
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Scalar{}, err
		}
	}

	log.Debug().
		Int("channels", len(scored)).
		Dur("elapsed", time.Since(start)).
		Msg("GMLOG compute finished")

	return result, nil
}

func (g *GMLOG) scorePlane(p *plane.Plane) (float64, error) {
	normalized, err := g.ranges.Normalize(nss.Features(p))
	if err != nil {
		return 0, err
	}
	return g.model.Predict(normalized)
}

// scoredPlanes selects the planes that contribute score slots: all of
// them for grayscale and RGB input, and everything but the alpha plane
// for RGBA input.
func scoredPlanes(planes []*plane.Plane) []*plane.Plane {
	if len(planes) == 5 {
		out := make([]*plane.Plane, 0, 4)
		out = append(out, planes[:3]...)
		return append(out, planes[4])
	}
	return planes
}

// GMLOGFeatures extracts the raw NSS feature vectors for every emitted
// channel plane, concatenated in the splitter's order. No model or
// range table is required.
func GMLOGFeatures(img image.Image) ([]float64, error) {
	planes, err := plane.ChannelsWithLuma(img)
	if err != nil {
		return nil, err
	}

	features := make([]float64, 0, len(planes)*nss.FeatureLen)
	for _, p := range planes {
		features = append(features, nss.Features(p)...)
	}
	return features, nil
}

// ComputeGMLOG is the one-shot scoring entry point: it loads the model
// and range resources, binds them and scores the image.
func ComputeGMLOG(img image.Image, modelPath, rangePath string) (Scalar, error) {
	g, err := NewGMLOGFromFiles(modelPath, rangePath)
	if err != nil {
		return Scalar{}, err
	}
	return g.Compute(img)
}
