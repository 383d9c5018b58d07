// Package nss extracts natural scene statistics features from image
// planes. It computes gradient magnitude and Laplacian of Gaussian
// response maps with fixed small kernels and fits an asymmetric
// generalized Gaussian distribution to each map, producing the feature
// vectors consumed by the quality regression models.
package nss

import (
	"math"

	"xquality/pkg/plane"
)

// kernelSigma is the Gaussian width shared by the derivative and LoG
// kernels. The 5x5 support covers more than four sigma on each side.
const (
	kernelSigma  = 0.5
	kernelRadius = 2
	kernelSize   = 2*kernelRadius + 1
)

// Kernel is a small square convolution kernel.
type Kernel struct {
	Size int
	W    []float64
}

// Fixed response kernels, built once at package load.
var (
	kernelDx  *Kernel
	kernelDy  *Kernel
	kernelLoG *Kernel
)

func init() {
	kernelDx = gaussianDerivativeKernel(false)
	kernelDy = gaussianDerivativeKernel(true)
	kernelLoG = logKernel()
	buildAGGDTable()
}

// gaussianDerivativeKernel builds the first derivative of a Gaussian
// along x (or y when vertical is set), normalized so the positive taps
// sum to 1.
func gaussianDerivativeKernel(vertical bool) *Kernel {
	k := &Kernel{Size: kernelSize, W: make([]float64, kernelSize*kernelSize)}
	s2 := kernelSigma * kernelSigma

	posSum := 0.0
	for y := -kernelRadius; y <= kernelRadius; y++ {
		for x := -kernelRadius; x <= kernelRadius; x++ {
			g := math.Exp(-(float64(x*x) + float64(y*y)) / (2 * s2))
			d := -float64(x) / s2 * g
			if vertical {
				d = -float64(y) / s2 * g
			}
			k.W[(y+kernelRadius)*kernelSize+(x+kernelRadius)] = d
			if d > 0 {
				posSum += d
			}
		}
	}
	for i := range k.W {
		k.W[i] /= posSum
	}
	return k
}

// logKernel builds a 5x5 Laplacian of Gaussian kernel, shifted to zero
// sum and scaled to unit absolute energy.
func logKernel() *Kernel {
	k := &Kernel{Size: kernelSize, W: make([]float64, kernelSize*kernelSize)}
	s2 := kernelSigma * kernelSigma

	sum := 0.0
	for y := -kernelRadius; y <= kernelRadius; y++ {
		for x := -kernelRadius; x <= kernelRadius; x++ {
			r2 := float64(x*x) + float64(y*y)
			v := (r2 - 2*s2) / (s2 * s2) * math.Exp(-r2/(2*s2))
			k.W[(y+kernelRadius)*kernelSize+(x+kernelRadius)] = v
			sum += v
		}
	}

	// Zero-sum so flat regions respond with exactly zero
	n := float64(len(k.W))
	absSum := 0.0
	for i := range k.W {
		k.W[i] -= sum / n
		absSum += math.Abs(k.W[i])
	}
	for i := range k.W {
		k.W[i] /= absSum
	}
	return k
}

// Convolve applies a kernel to a plane with mirror-reflected borders and
// returns the response map.
func Convolve(p *plane.Plane, k *Kernel) *plane.Plane {
	out := plane.New(p.W, p.H)
	radius := k.Size / 2

	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			sum := 0.0
			for ky := -radius; ky <= radius; ky++ {
				for kx := -radius; kx <= radius; kx++ {
					sx := reflect(x+kx, p.W)
					sy := reflect(y+ky, p.H)
					sum += k.W[(ky+radius)*k.Size+(kx+radius)] * p.At(sx, sy)
				}
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

// reflect mirrors an out-of-range coordinate back into [0, n). A single
// fold is not enough when the kernel radius exceeds the dimension, so
// the folds repeat until the coordinate lands inside the plane.
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// GradientMagnitude computes the Euclidean norm of the horizontal and
// vertical Gaussian derivative responses.
func GradientMagnitude(p *plane.Plane) *plane.Plane {
	gx := Convolve(p, kernelDx)
	gy := Convolve(p, kernelDy)

	out := plane.New(p.W, p.H)
	for i := range out.Pix {
		out.Pix[i] = math.Hypot(gx.Pix[i], gy.Pix[i])
	}
	return out
}

// LaplacianOfGaussian computes the band-pass LoG response map.
func LaplacianOfGaussian(p *plane.Plane) *plane.Plane {
	return Convolve(p, kernelLoG)
}
