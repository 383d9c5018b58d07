package nss

import "math"

// AGGDParams holds the fitted parameters of an asymmetric generalized
// Gaussian distribution: the shape parameter, sample mean and the left
// and right tail variances.
type AGGDParams struct {
	Alpha    float64
	Mean     float64
	LeftVar  float64
	RightVar float64
}

// Shape lookup table covering alpha in [0.2, 10] at 0.001 steps. For
// each alpha it stores r(alpha) = Gamma(2/alpha)^2 /
// (Gamma(1/alpha) * Gamma(3/alpha)), the moment ratio inverted during
// fitting.
const (
	aggdAlphaMin  = 0.2
	aggdAlphaMax  = 10.0
	aggdAlphaStep = 0.001
)

var (
	aggdAlphas []float64
	aggdRatios []float64
)

func buildAGGDTable() {
	n := int((aggdAlphaMax-aggdAlphaMin)/aggdAlphaStep) + 1
	aggdAlphas = make([]float64, n)
	aggdRatios = make([]float64, n)
	for i := 0; i < n; i++ {
		a := aggdAlphaMin + float64(i)*aggdAlphaStep
		g2 := math.Gamma(2.0 / a)
		aggdAlphas[i] = a
		aggdRatios[i] = g2 * g2 / (math.Gamma(1.0/a) * math.Gamma(3.0/a))
	}
}

// FitAGGD fits an asymmetric generalized Gaussian distribution to the
// samples by moment matching over the precomputed shape table. The fit
// is a closed-form moment computation followed by a deterministic table
// scan, so repeated calls on the same input are bit-identical.
//
// Zero-energy input (all samples equal to their mean) yields the
// Gaussian shape with zero tail variances rather than NaN.
func FitAGGD(samples []float64) AGGDParams {
	if len(samples) == 0 {
		return AGGDParams{Alpha: 2.0}
	}

	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))

	// Left and right second moments around the mean, plus the mean
	// absolute deviation used by the moment ratio
	var leftSq, rightSq, absSum float64
	var leftN, rightN int
	for _, v := range samples {
		d := v - mean
		absSum += math.Abs(d)
		if d < 0 {
			leftSq += d * d
			leftN++
		} else {
			rightSq += d * d
			rightN++
		}
	}

	total := float64(len(samples))
	secondMoment := (leftSq + rightSq) / total
	if secondMoment == 0 {
		return AGGDParams{Alpha: 2.0, Mean: mean}
	}

	leftVar := 0.0
	if leftN > 0 {
		leftVar = leftSq / float64(leftN)
	}
	rightVar := 0.0
	if rightN > 0 {
		rightVar = rightSq / float64(rightN)
	}

	// Generalized Gaussian moment ratio, corrected for asymmetry as in
	// the AGGD estimator of Lasmar et al.
	rhat := (absSum / total) * (absSum / total) / secondMoment
	gammaHat := 1.0
	if rightVar > 0 && leftVar > 0 {
		gammaHat = math.Sqrt(leftVar) / math.Sqrt(rightVar)
	}
	g := gammaHat
	rhatNorm := rhat * (g*g*g + 1) * (g + 1) / ((g*g + 1) * (g*g + 1))

	// Deterministic scan for the closest tabulated ratio
	bestIdx := 0
	bestDiff := math.Abs(aggdRatios[0] - rhatNorm)
	for i := 1; i < len(aggdRatios); i++ {
		d := math.Abs(aggdRatios[i] - rhatNorm)
		if d < bestDiff {
			bestDiff = d
			bestIdx = i
		}
	}

	return AGGDParams{
		Alpha:    aggdAlphas[bestIdx],
		Mean:     mean,
		LeftVar:  leftVar,
		RightVar: rightVar,
	}
}
