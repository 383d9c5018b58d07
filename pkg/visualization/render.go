// Package visualization renders quality maps produced by the metrics
// into grayscale images, either one pixel per block or upsampled to the
// source resolution.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"xquality/pkg/quality"
)

// RenderMap converts a quality map into a grayscale image with one
// pixel per block cell. Cell values are clamped to [0, 1] and mapped to
// 0-255, so brighter pixels mean higher block quality.
func RenderMap(m *quality.QualityMap) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.W, m.H))

	for by := 0; by < m.H; by++ {
		for bx := 0; bx < m.W; bx++ {
			v := m.At(bx, by)
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			img.SetGray(bx, by, color.Gray{Y: uint8(v*255.0 + 0.5)})
		}
	}

	return img
}

// UpsampleMap renders a quality map at the given resolution using
// nearest-neighbor scaling, so every pixel of a block carries that
// block's exact value.
func UpsampleMap(m *quality.QualityMap, width, height int) *image.Gray {
	cells := RenderMap(m)

	out := image.NewGray(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(out, out.Bounds(), cells, cells.Bounds(), draw.Src, nil)
	return out
}

// SaveMapPNG writes a quality map to a PNG file, at block granularity
// or upsampled to the covered source resolution when fullRes is set.
func SaveMapPNG(m *quality.QualityMap, path string, fullRes bool) error {
	var img *image.Gray
	if fullRes {
		img = UpsampleMap(m, m.W*m.BlockW, m.H*m.BlockH)
	} else {
		img = RenderMap(m)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating map file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("error encoding map: %w", err)
	}

	return nil
}
