package quality

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"xquality/pkg/plane"
	"xquality/pkg/regression"
)

// BlockSVDName is the stable algorithm identifier for the BlockSVD metric.
const BlockSVDName = "xquality.blocksvd"

// DefaultBlockSize is the default block edge length.
const DefaultBlockSize = 8

// simEpsilon guards the similarity denominator on flat block pairs.
const simEpsilon = 1e-12

// BlockSVD compares singular value spectra of non-overlapping image
// blocks. Three modes are supported, selected by construction:
//
//   - Map mode (any instance): ComputeMap scores a reference against a
//     comparison image, block similarity in [0, 1] with 1 meaning
//     identical block structure, plus a per-block quality map.
//   - Reference-bound mode (NewBlockSVDWithReference): Compute scores a
//     comparison image against the stored reference as a mean squared
//     spectral distance, 0 best and unbounded above.
//   - Model mode (NewBlockSVDModel / NewBlockSVDFromFiles): Compute
//     passes block spectral statistics through the range normalizer and
//     trained regressor, like the GMLOG scoring path.
//
// Edge policy: trailing partial blocks at the right and bottom image
// borders are dropped. The quality map therefore has exactly
// width/blockW by height/blockH cells.
//
// Instances are safe for concurrent Compute calls; the cached reference
// decomposition is guarded by a mutex and recomputed lazily after a
// block size change.
type BlockSVD struct {
	mu             sync.Mutex
	blockW, blockH int

	// Reference state, bound at construction; spectra cached lazily.
	ref        []*plane.Plane
	refSpectra [][][]float64

	// Model state for the regression scoring path.
	model  regression.Predictor
	ranges *regression.RangeTable
}

// NewBlockSVD creates an instance with the default 8x8 block size and
// no bound reference or model. Only the two-image entry points are
// usable until a reference or model is supplied.
func NewBlockSVD() *BlockSVD {
	return &BlockSVD{blockW: DefaultBlockSize, blockH: DefaultBlockSize}
}

// NewBlockSVDWithReference binds a reference image whose block spectra
// are reused across repeated comparisons.
func NewBlockSVDWithReference(ref image.Image, blockW, blockH int) (*BlockSVD, error) {
	if blockW <= 0 || blockH <= 0 {
		return nil, fmt.Errorf("%w: invalid block size %dx%d", ErrSizeMismatch, blockW, blockH)
	}
	planes, err := plane.Channels(ref)
	if err != nil {
		return nil, err
	}
	if planes[0].W/blockW == 0 || planes[0].H/blockH == 0 {
		return nil, fmt.Errorf("%w: block size %dx%d exceeds reference %dx%d",
			ErrSizeMismatch, blockW, blockH, planes[0].W, planes[0].H)
	}
	return &BlockSVD{blockW: blockW, blockH: blockH, ref: planes}, nil
}

// NewBlockSVDModel binds a pre-loaded model and range table for the
// regression scoring path. Fails with ErrDimensionMismatch when the
// table length does not match the model's input width.
func NewBlockSVDModel(model regression.Predictor, ranges *regression.RangeTable) (*BlockSVD, error) {
	if ranges.Len() != model.Dims() {
		return nil, fmt.Errorf("%w: range table has %d entries, model expects %d",
			ErrDimensionMismatch, ranges.Len(), model.Dims())
	}
	return &BlockSVD{
		blockW: DefaultBlockSize,
		blockH: DefaultBlockSize,
		model:  model,
		ranges: ranges,
	}, nil
}

// NewBlockSVDFromFiles loads the model and range resources from YAML
// files and binds them.
func NewBlockSVDFromFiles(modelPath, rangePath string) (*BlockSVD, error) {
	model, err := regression.LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	ranges, err := regression.LoadRange(rangePath)
	if err != nil {
		return nil, err
	}
	return NewBlockSVDModel(model, ranges)
}

// DefaultName returns the stable algorithm identifier.
func (b *BlockSVD) DefaultName() string {
	return BlockSVDName
}

// BlockSize returns the current block dimensions.
func (b *BlockSVD) BlockSize() (w, h int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockW, b.blockH
}

// SetBlockSize changes the partitioning granularity for subsequent
// calls and invalidates the cached reference decomposition, which is
// recomputed lazily on next use.
func (b *BlockSVD) SetBlockSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: invalid block size %dx%d", ErrSizeMismatch, w, h)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockW = w
	b.blockH = h
	b.refSpectra = nil
	return nil
}

// ComputeMap partitions both images into blocks, compares the singular
// value spectra of corresponding blocks and returns per-channel mean
// similarities plus the per-block quality map (channel-mean similarity
// per cell). Fails with ErrSizeMismatch when the images differ in
// spatial dimensions or channel count, or when a block does not fit.
func (b *BlockSVD) ComputeMap(ref, cmp image.Image) (Scalar, *QualityMap, error) {
	start := time.Now()
	blockW, blockH := b.BlockSize()

	refBounds := ref.Bounds()
	cmpBounds := cmp.Bounds()
	if refBounds.Dx() != cmpBounds.Dx() || refBounds.Dy() != cmpBounds.Dy() {
		return Scalar{}, nil, fmt.Errorf("%w: reference %dx%d vs comparison %dx%d",
			ErrSizeMismatch, refBounds.Dx(), refBounds.Dy(), cmpBounds.Dx(), cmpBounds.Dy())
	}

	refPlanes, err := plane.Channels(ref)
	if err != nil {
		return Scalar{}, nil, err
	}
	cmpPlanes, err := plane.Channels(cmp)
	if err != nil {
		return Scalar{}, nil, err
	}
	if len(refPlanes) != len(cmpPlanes) {
		return Scalar{}, nil, fmt.Errorf("%w: reference has %d channels, comparison %d",
			ErrSizeMismatch, len(refPlanes), len(cmpPlanes))
	}

	bx := refPlanes[0].W / blockW
	by := refPlanes[0].H / blockH
	if bx == 0 || by == 0 {
		return Scalar{}, nil, fmt.Errorf("%w: block size %dx%d exceeds image %dx%d",
			ErrSizeMismatch, blockW, blockH, refPlanes[0].W, refPlanes[0].H)
	}

	qmap := NewQualityMap(bx, by, blockW, blockH)
	var result Scalar
	for c := range refPlanes {
		refSpectra := planeSpectra(refPlanes[c], blockW, blockH)
		cmpSpectra := planeSpectra(cmpPlanes[c], blockW, blockH)

		sims := make([]float64, bx*by)
		for i := range sims {
			sims[i] = spectralSimilarity(refSpectra[i], cmpSpectra[i])
			qmap.Values[i] += sims[i] / float64(len(refPlanes))
		}
		result[c] = stat.Mean(sims, nil)
	}

	log.Debug().
		Int("channels", len(refPlanes)).
		Int("blocks", bx*by).
		Dur("elapsed", time.Since(start)).
		Msg("BlockSVD map compute finished")

	return result, qmap, nil
}

// ComputePair is map mode with the quality map discarded.
func (b *BlockSVD) ComputePair(ref, cmp image.Image) (Scalar, error) {
	result, _, err := b.ComputeMap(ref, cmp)
	return result, err
}

// Compute scores a single comparison image. Model-bound instances run
// the regression path over block spectral features; reference-bound
// instances return the per-channel mean squared spectral distance to
// the stored reference (0 best, unbounded worst). Fails with
// ErrEmptyReference when neither a model nor a reference was bound.
func (b *BlockSVD) Compute(img image.Image) (Scalar, error) {
	if b.model != nil {
		return b.computeModel(img)
	}
	if b.ref != nil {
		return b.computeAgainstReference(img)
	}
	return Scalar{}, fmt.Errorf("%w: no reference or model bound", ErrEmptyReference)
}

func (b *BlockSVD) computeAgainstReference(img image.Image) (Scalar, error) {
	blockW, blockH, refSpectra, err := b.referenceSpectra()
	if err != nil {
		return Scalar{}, err
	}

	bounds := img.Bounds()
	if bounds.Dx() != b.ref[0].W || bounds.Dy() != b.ref[0].H {
		return Scalar{}, fmt.Errorf("%w: reference %dx%d vs comparison %dx%d",
			ErrSizeMismatch, b.ref[0].W, b.ref[0].H, bounds.Dx(), bounds.Dy())
	}

	cmpPlanes, err := plane.Channels(img)
	if err != nil {
		return Scalar{}, err
	}
	if len(cmpPlanes) != len(b.ref) {
		return Scalar{}, fmt.Errorf("%w: reference has %d channels, comparison %d",
			ErrSizeMismatch, len(b.ref), len(cmpPlanes))
	}

	var result Scalar
	for c := range cmpPlanes {
		cmpSpectra := planeSpectra(cmpPlanes[c], blockW, blockH)

		dists := make([]float64, len(cmpSpectra))
		for i := range cmpSpectra {
			dists[i] = spectralSqDistance(refSpectra[c][i], cmpSpectra[i])
		}
		result[c] = stat.Mean(dists, nil)
	}
	return result, nil
}

// referenceSpectra returns the current block size together with the
// cached reference decomposition, computing it under the lock if a
// block size change invalidated it.
func (b *BlockSVD) referenceSpectra() (blockW, blockH int, spectra [][][]float64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ref[0].W/b.blockW == 0 || b.ref[0].H/b.blockH == 0 {
		return 0, 0, nil, fmt.Errorf("%w: block size %dx%d exceeds reference %dx%d",
			ErrSizeMismatch, b.blockW, b.blockH, b.ref[0].W, b.ref[0].H)
	}

	if b.refSpectra == nil {
		b.refSpectra = make([][][]float64, len(b.ref))
		for c, p := range b.ref {
			b.refSpectra[c] = planeSpectra(p, b.blockW, b.blockH)
		}
	}
	return b.blockW, b.blockH, b.refSpectra, nil
}

func (b *BlockSVD) computeModel(img image.Image) (Scalar, error) {
	blockW, blockH := b.BlockSize()

	planes, err := plane.ChannelsWithLuma(img)
	if err != nil {
		return Scalar{}, err
	}
	scored := scoredPlanes(planes)

	if scored[0].W/blockW == 0 || scored[0].H/blockH == 0 {
		return Scalar{}, fmt.Errorf("%w: block size %dx%d exceeds image %dx%d",
			ErrSizeMismatch, blockW, blockH, scored[0].W, scored[0].H)
	}

	var result Scalar
	for c, p := range scored {
		features := blockFeatures(planeSpectra(p, blockW, blockH))
		normalized, err := b.ranges.Normalize(features)
		if err != nil {
			return Scalar{}, err
		}
		score, err := b.model.Predict(normalized)
		if err != nil {
			return Scalar{}, err
		}
		result[c] = score
	}
	return result, nil
}

// blockFeatures reduces a plane's block spectra to a fixed-length
// feature vector: each spectrum is L2-normalized, then the per-index
// mean and standard deviation across blocks are concatenated.
func blockFeatures(spectra [][]float64) []float64 {
	n := len(spectra[0])
	normalized := make([][]float64, len(spectra))
	for i, s := range spectra {
		norm := 0.0
		for _, v := range s {
			norm += v * v
		}
		norm = math.Sqrt(norm)

		row := make([]float64, n)
		if norm > 0 {
			for j, v := range s {
				row[j] = v / norm
			}
		}
		normalized[i] = row
	}

	features := make([]float64, 0, 2*n)
	column := make([]float64, len(normalized))
	for j := 0; j < n; j++ {
		for i := range normalized {
			column[i] = normalized[i][j]
		}
		features = append(features, stat.Mean(column, nil))
	}
	for j := 0; j < n; j++ {
		for i := range normalized {
			column[i] = normalized[i][j]
		}
		features = append(features, stat.StdDev(column, nil))
	}
	return features
}

// planeSpectra computes the singular value spectrum of every full block
// of a plane, in row-major block order. Block rows are distributed
// across workers owning disjoint ranges; every output slot is written
// exactly once, so the result is independent of scheduling.
func planeSpectra(p *plane.Plane, blockW, blockH int) [][]float64 {
	bx := p.W / blockW
	by := p.H / blockH
	spectra := make([][]float64, bx*by)

	numWorkers := runtime.NumCPU()
	if numWorkers > by {
		numWorkers = by
	}
	rowsPerWorker := (by + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if endRow > by {
			endRow = by
		}
		if startRow >= endRow {
			continue
		}

		wg.Add(1)
		go func(startRow, endRow int) {
			defer wg.Done()

			// Per-worker scratch: block buffer and SVD factorization
			block := make([]float64, blockW*blockH)
			var svd mat.SVD
			for row := startRow; row < endRow; row++ {
				for col := 0; col < bx; col++ {
					p.Block(col*blockW, row*blockH, blockW, blockH, block)
					m := mat.NewDense(blockH, blockW, block)
					if ok := svd.Factorize(m, mat.SVDNone); !ok {
						// Convergence failure, treated as a flat block
						spectra[row*bx+col] = make([]float64, min(blockW, blockH))
						continue
					}
					spectra[row*bx+col] = svd.Values(nil)
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	return spectra
}

// spectralSimilarity maps two singular value spectra to [0, 1], where 1
// means identical block structure.
func spectralSimilarity(a, b []float64) float64 {
	var diff, normA, normB float64
	for i := range a {
		d := a[i] - b[i]
		diff += d * d
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return 1 - math.Sqrt(diff)/(math.Sqrt(normA)+math.Sqrt(normB)+simEpsilon)
}

// spectralSqDistance is the squared Euclidean distance between spectra.
func spectralSqDistance(a, b []float64) float64 {
	var diff float64
	for i := range a {
		d := a[i] - b[i]
		diff += d * d
	}
	return diff
}

// ComputeBlockSVD is the one-shot map-mode entry point with the default
// block size.
func ComputeBlockSVD(ref, cmp image.Image) (Scalar, *QualityMap, error) {
	return NewBlockSVD().ComputeMap(ref, cmp)
}
