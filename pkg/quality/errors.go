package quality

import (
	"errors"

	"xquality/pkg/plane"
	"xquality/pkg/regression"
)

// Error taxonomy for the quality metrics. The channel and regression
// errors originate in their producing packages and are aliased here so
// callers can errors.Is against a single package.
var (
	// ErrUnsupportedChannels indicates an input image with a channel
	// count outside {1, 3, 4}.
	ErrUnsupportedChannels = plane.ErrUnsupportedChannels

	// ErrModelLoad indicates a missing or malformed model or range
	// resource.
	ErrModelLoad = regression.ErrModelLoad

	// ErrDimensionMismatch indicates feature, range table or model
	// widths that do not agree.
	ErrDimensionMismatch = regression.ErrDimensionMismatch

	// ErrPrediction indicates a failure of the underlying regression
	// model during scoring.
	ErrPrediction = regression.ErrPrediction

	// ErrSizeMismatch indicates reference and comparison images with
	// different spatial dimensions, or a block size the image cannot
	// accommodate.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrEmptyReference indicates a reference-bound computation invoked
	// on an instance with no bound reference or model.
	ErrEmptyReference = errors.New("empty reference")
)
