package quality

import (
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"testing"

	"xquality/pkg/nss"
	"xquality/pkg/regression"
)

// testPredictor is a deterministic stand-in for a trained model
type testPredictor struct {
	dims  int
	score func(features []float64) float64
}

func (p *testPredictor) Dims() int { return p.dims }

func (p *testPredictor) Predict(features []float64) (float64, error) {
	if len(features) != p.dims {
		return 0, regression.ErrPrediction
	}
	return p.score(features), nil
}

func fullRangeTable(t *testing.T, n int) *regression.RangeTable {
	t.Helper()
	min := make([]float64, n)
	max := make([]float64, n)
	for i := range max {
		min[i] = -10
		max[i] = 10
	}
	table, err := regression.NewRangeTable(-1, 1, min, max)
	if err != nil {
		t.Fatalf("NewRangeTable failed: %v", err)
	}
	return table
}

func constPredictor(n int, v float64) *testPredictor {
	return &testPredictor{dims: n, score: func([]float64) float64 { return v }}
}

func grayRamp(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 255) / w)})
		}
	}
	return img
}

func addNoise(img *image.Gray, amplitude int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := int(img.GrayAt(x, y).Y) + rng.Intn(2*amplitude+1) - amplitude
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return out
}

// TestNewGMLOGDimensionMismatch verifies the construction-time check
func TestNewGMLOGDimensionMismatch(t *testing.T) {
	_, err := NewGMLOG(constPredictor(nss.FeatureLen, 0), fullRangeTable(t, nss.FeatureLen+1))
	if err == nil {
		t.Fatal("Expected error for mismatched range table, got nil")
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

// TestGMLOGComputeGray verifies that grayscale input fills only the first slot
func TestGMLOGComputeGray(t *testing.T) {
	g, err := NewGMLOG(constPredictor(nss.FeatureLen, 42.0), fullRangeTable(t, nss.FeatureLen))
	if err != nil {
		t.Fatalf("NewGMLOG failed: %v", err)
	}

	result, err := g.Compute(grayRamp(32, 32))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if result[0] != 42.0 {
		t.Errorf("Expected score 42.0 in slot 0, got %f", result[0])
	}
	for i := 1; i < 4; i++ {
		if result[i] != 0 {
			t.Errorf("Expected unused slot %d to be 0, got %f", i, result[i])
		}
	}
}

// TestGMLOGComputeColor verifies that colour input fills all four slots
// (three channels plus trailing luma)
func TestGMLOGComputeColor(t *testing.T) {
	g, err := NewGMLOG(constPredictor(nss.FeatureLen, 7.0), fullRangeTable(t, nss.FeatureLen))
	if err != nil {
		t.Fatalf("NewGMLOG failed: %v", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}

	result, err := g.Compute(img)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		if result[i] != 7.0 {
			t.Errorf("Expected score 7.0 in slot %d, got %f", i, result[i])
		}
	}
}

// TestGMLOGFeaturesLength verifies the computeFeatures contract: fixed
// length per plane, concatenated over emitted planes, deterministic
func TestGMLOGFeaturesLength(t *testing.T) {
	gray := grayRamp(32, 32)

	features, err := GMLOGFeatures(gray)
	if err != nil {
		t.Fatalf("GMLOGFeatures failed: %v", err)
	}
	if len(features) != nss.FeatureLen {
		t.Errorf("Expected %d features for grayscale, got %d", nss.FeatureLen, len(features))
	}

	again, err := GMLOGFeatures(gray)
	if err != nil {
		t.Fatalf("GMLOGFeatures failed: %v", err)
	}
	for i := range features {
		if features[i] != again[i] {
			t.Errorf("Feature %d differs between runs: %g vs %g", i, features[i], again[i])
		}
	}

	ycbcr := image.NewYCbCr(image.Rect(0, 0, 32, 32), image.YCbCrSubsampleRatio444)
	colorFeatures, err := GMLOGFeatures(ycbcr)
	if err != nil {
		t.Fatalf("GMLOGFeatures failed: %v", err)
	}
	if len(colorFeatures) != 4*nss.FeatureLen {
		t.Errorf("Expected %d features for 3-channel input, got %d",
			4*nss.FeatureLen, len(colorFeatures))
	}
}

// twoChannelImage declares an unsupported channel count
type twoChannelImage struct {
	image.Gray
}

func (twoChannelImage) ChannelCount() int { return 2 }

// TestGMLOGUnsupportedChannels verifies error propagation from the splitter
func TestGMLOGUnsupportedChannels(t *testing.T) {
	g, err := NewGMLOG(constPredictor(nss.FeatureLen, 0), fullRangeTable(t, nss.FeatureLen))
	if err != nil {
		t.Fatalf("NewGMLOG failed: %v", err)
	}

	_, err = g.Compute(&twoChannelImage{*image.NewGray(image.Rect(0, 0, 8, 8))})
	if !errors.Is(err, ErrUnsupportedChannels) {
		t.Errorf("Expected ErrUnsupportedChannels, got %v", err)
	}
}

// TestGMLOGMonotonicDegradation verifies that a heavily distorted image
// scores strictly higher than the pristine source, for a predictor
// keyed to the distortion-sensitive LoG variance feature
func TestGMLOGMonotonicDegradation(t *testing.T) {
	// Feature layout per scale: GM alpha, mean, lvar, rvar then the
	// same four for LoG. Index 6 is the LoG left variance at scale 0,
	// which grows with added high-frequency noise.
	predictor := &testPredictor{
		dims: nss.FeatureLen,
		score: func(f []float64) float64 {
			return 100 * (f[6] + 1) / 2
		},
	}
	g, err := NewGMLOG(predictor, fullRangeTable(t, nss.FeatureLen))
	if err != nil {
		t.Fatalf("NewGMLOG failed: %v", err)
	}

	pristine := grayRamp(64, 64)
	distorted := addNoise(pristine, 80, 99)

	cleanScore, err := g.Compute(pristine)
	if err != nil {
		t.Fatalf("Compute on pristine image failed: %v", err)
	}
	noisyScore, err := g.Compute(distorted)
	if err != nil {
		t.Fatalf("Compute on distorted image failed: %v", err)
	}

	if noisyScore[0] <= cleanScore[0] {
		t.Errorf("Expected distorted score (%f) above pristine score (%f)",
			noisyScore[0], cleanScore[0])
	}
}

// TestGMLOGConcurrentCompute verifies that concurrent calls on a shared
// instance match sequential results
func TestGMLOGConcurrentCompute(t *testing.T) {
	predictor := &testPredictor{
		dims: nss.FeatureLen,
		score: func(f []float64) float64 {
			sum := 0.0
			for _, v := range f {
				sum += v
			}
			return sum
		},
	}
	g, err := NewGMLOG(predictor, fullRangeTable(t, nss.FeatureLen))
	if err != nil {
		t.Fatalf("NewGMLOG failed: %v", err)
	}

	images := []image.Image{
		grayRamp(32, 32),
		addNoise(grayRamp(32, 32), 40, 1),
		addNoise(grayRamp(32, 32), 80, 2),
	}

	sequential := make([]Scalar, len(images))
	for i, img := range images {
		s, err := g.Compute(img)
		if err != nil {
			t.Fatalf("Sequential compute failed: %v", err)
		}
		sequential[i] = s
	}

	concurrent := make([]Scalar, len(images))
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img image.Image) {
			defer wg.Done()
			s, err := g.Compute(img)
			if err != nil {
				t.Errorf("Concurrent compute failed: %v", err)
				return
			}
			concurrent[i] = s
		}(i, img)
	}
	wg.Wait()

	for i := range images {
		for c := 0; c < 4; c++ {
			if math.Abs(sequential[i][c]-concurrent[i][c]) > 1e-12 {
				t.Errorf("Image %d channel %d: sequential %g vs concurrent %g",
					i, c, sequential[i][c], concurrent[i][c])
			}
		}
	}
}

// TestGMLOGFeaturesTinyImages verifies feature extraction on images at
// or below the kernel support, including single-row and single-column
// input
func TestGMLOGFeaturesTinyImages(t *testing.T) {
	for _, size := range []image.Rectangle{
		image.Rect(0, 0, 2, 2),
		image.Rect(0, 0, 3, 3),
		image.Rect(0, 0, 1, 8),
		image.Rect(0, 0, 8, 1),
	} {
		features, err := GMLOGFeatures(grayRamp(size.Dx(), size.Dy()))
		if err != nil {
			t.Fatalf("GMLOGFeatures on %dx%d failed: %v", size.Dx(), size.Dy(), err)
		}
		if len(features) != nss.FeatureLen {
			t.Errorf("Expected %d features for %dx%d input, got %d",
				nss.FeatureLen, size.Dx(), size.Dy(), len(features))
		}
		for i, f := range features {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				t.Errorf("%dx%d input: feature %d is not finite: %f",
					size.Dx(), size.Dy(), i, f)
			}
		}
	}
}

// TestGMLOGFromFilesMissing verifies the resource-loading error path
func TestGMLOGFromFilesMissing(t *testing.T) {
	_, err := NewGMLOGFromFiles("no_such_model.yml", "no_such_range.yml")
	if !errors.Is(err, ErrModelLoad) {
		t.Errorf("Expected ErrModelLoad, got %v", err)
	}
}

// TestGMLOGDefaultName verifies the stable identifier
func TestGMLOGDefaultName(t *testing.T) {
	g, _ := NewGMLOG(constPredictor(nss.FeatureLen, 0), fullRangeTable(t, nss.FeatureLen))
	if g.DefaultName() != "xquality.gmlog" {
		t.Errorf("Unexpected default name: %s", g.DefaultName())
	}
}
