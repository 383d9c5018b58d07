package nss

import "xquality/pkg/plane"

// Feature vector layout: two scales (full resolution and one 2x
// downsample), each contributing the four AGGD parameters of the
// gradient magnitude map followed by the four of the LoG map.
const (
	// NumScales is the number of resolution scales per channel.
	NumScales = 2

	// paramsPerMap is the AGGD parameter count per response map.
	paramsPerMap = 4

	// FeatureLen is the feature vector length per channel plane.
	FeatureLen = NumScales * 2 * paramsPerMap
)

// Features computes the fixed-length NSS feature vector for one channel
// plane. For each scale the gradient magnitude map is fitted after mean
// subtraction, the LoG map directly; the eight parameters per scale are
// concatenated in a fixed canonical order.
func Features(p *plane.Plane) []float64 {
	features := make([]float64, 0, FeatureLen)

	current := p
	for scale := 0; scale < NumScales; scale++ {
		if scale > 0 {
			current = current.Downsample2()
		}

		gm := GradientMagnitude(current)
		subtractMean(gm.Pix)
		features = appendParams(features, FitAGGD(gm.Pix))

		log := LaplacianOfGaussian(current)
		features = appendParams(features, FitAGGD(log.Pix))
	}

	return features
}

func appendParams(dst []float64, p AGGDParams) []float64 {
	return append(dst, p.Alpha, p.Mean, p.LeftVar, p.RightVar)
}

func subtractMean(data []float64) {
	if len(data) == 0 {
		return
	}
	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))
	for i := range data {
		data[i] -= mean
	}
}
