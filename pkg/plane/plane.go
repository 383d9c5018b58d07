// Package plane provides single-channel floating-point image planes and
// the channel splitting used by the quality metrics. Planes are row-major
// float64 grids in the 0-1 range, converted from stdlib images through
// the 16-bit RGBA() path.
package plane

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrUnsupportedChannels is returned when an input image has a channel
// count other than 1, 3 or 4.
var ErrUnsupportedChannels = errors.New("unsupported channel count")

// Plane is a single-channel 2D grid of float64 samples in row-major order.
type Plane struct {
	W, H int
	Pix  []float64
}

// New creates a zeroed plane with the given dimensions.
func New(w, h int) *Plane {
	return &Plane{
		W:   w,
		H:   h,
		Pix: make([]float64, w*h),
	}
}

// At returns the sample at (x, y).
func (p *Plane) At(x, y int) float64 {
	return p.Pix[y*p.W+x]
}

// Set stores a sample at (x, y).
func (p *Plane) Set(x, y int, v float64) {
	p.Pix[y*p.W+x] = v
}

// Clone returns a deep copy of the plane.
func (p *Plane) Clone() *Plane {
	out := New(p.W, p.H)
	copy(out.Pix, p.Pix)
	return out
}

// Block copies the w*h block with top-left corner (x0, y0) into dst,
// which must have room for w*h samples. The block must lie fully inside
// the plane.
func (p *Plane) Block(x0, y0, w, h int, dst []float64) {
	for y := 0; y < h; y++ {
		copy(dst[y*w:(y+1)*w], p.Pix[(y0+y)*p.W+x0:(y0+y)*p.W+x0+w])
	}
}

// Downsample2 returns a half-resolution plane produced by 2x2 box
// averaging. Trailing odd rows and columns are dropped.
func (p *Plane) Downsample2() *Plane {
	w := p.W / 2
	h := p.H / 2
	out := New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := p.At(2*x, 2*y) + p.At(2*x+1, 2*y) +
				p.At(2*x, 2*y+1) + p.At(2*x+1, 2*y+1)
			out.Set(x, y, sum/4.0)
		}
	}
	return out
}

// FromImage converts any stdlib image to a single luma plane using the
// red channel of the 16-bit RGBA() representation, matching grayscale
// sources exactly and approximating colour ones.
func FromImage(img image.Image) *Plane {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := New(width, height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Convert 16-bit color to float64 (0-1 range)
			out.Pix[y*width+x] = float64(r) / 65535.0
		}
	}

	return out
}

// ToGray converts a plane back to an 8-bit grayscale image, clamping
// samples to the 0-1 range.
func ToGray(p *Plane) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.W, p.H))
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			v := p.At(x, y)
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v*255.0 + 0.5)})
		}
	}
	return img
}

// ChannelCounter is implemented by images that declare their own channel
// count, overriding type-based detection. Used by callers whose pixel
// formats are not expressible as stdlib image types.
type ChannelCounter interface {
	ChannelCount() int
}

// ChannelCount reports the number of channels an image will be split
// into: 1 for grayscale types, 3 for colour types without alpha, 4 for
// colour types with alpha. Images implementing ChannelCounter report
// their own count. Counts outside {1, 3, 4} fail with
// ErrUnsupportedChannels.
func ChannelCount(img image.Image) (int, error) {
	var n int
	switch im := img.(type) {
	case ChannelCounter:
		n = im.ChannelCount()
	case *image.Gray, *image.Gray16:
		n = 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		n = 4
	default:
		// YCbCr, CMYK, Paletted and unknown colour formats are read
		// back as RGB.
		n = 3
	}
	if n != 1 && n != 3 && n != 4 {
		return 0, fmt.Errorf("%w: %d channels", ErrUnsupportedChannels, n)
	}
	return n, nil
}

// Channels splits an image into one plane per channel: [Y] for
// grayscale, [R, G, B] for colour, [R, G, B, A] for colour with alpha.
// Fails with ErrUnsupportedChannels for any other channel count.
func Channels(img image.Image) ([]*Plane, error) {
	n, err := ChannelCount(img)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if n == 1 {
		return []*Plane{FromImage(img)}, nil
	}

	planes := make([]*Plane, n)
	for i := range planes {
		planes[i] = New(width, height)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*width + x
			planes[0].Pix[idx] = float64(r) / 65535.0
			planes[1].Pix[idx] = float64(g) / 65535.0
			planes[2].Pix[idx] = float64(b) / 65535.0
			if n == 4 {
				planes[3].Pix[idx] = float64(a) / 65535.0
			}
		}
	}
	return planes, nil
}

// ChannelsWithLuma splits an image as Channels does, then appends a
// trailing luma plane computed from the RGB planes with ITU-R BT.601
// weights. Single-channel input gets no extra plane.
func ChannelsWithLuma(img image.Image) ([]*Plane, error) {
	planes, err := Channels(img)
	if err != nil {
		return nil, err
	}
	if len(planes) == 1 {
		return planes, nil
	}

	luma := New(planes[0].W, planes[0].H)
	for i := range luma.Pix {
		luma.Pix[i] = 0.299*planes[0].Pix[i] +
			0.587*planes[1].Pix[i] +
			0.114*planes[2].Pix[i]
	}
	return append(planes, luma), nil
}
