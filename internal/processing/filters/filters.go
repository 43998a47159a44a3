// Package filters prepares the grayscale image a segmentation thresholds.
package filters

import (
	"context"
	"errors"
	"fmt"

	"watershed-segmenter/internal/opencv/safe"

	"gocv.io/x/gocv"
)

var ErrInvalidOptions = errors.New("invalid preprocessing options")

// Options selects the optional filters. The zero value applies none.
type Options struct {
	BlurSigma      float64 `yaml:"blur_sigma"`
	CLAHE          bool    `yaml:"clahe"`
	CLAHEClipLimit float64 `yaml:"clahe_clip_limit"`
	CLAHETileSize  int     `yaml:"clahe_tile_size"`
}

func DefaultOptions() Options {
	return Options{
		CLAHEClipLimit: 3.0,
		CLAHETileSize:  8,
	}
}

func (o Options) Enabled() bool {
	return o.BlurSigma > 0 || o.CLAHE
}

func (o Options) Validate() error {
	if o.BlurSigma < 0 {
		return fmt.Errorf("%w: blur_sigma must not be negative, got %g", ErrInvalidOptions, o.BlurSigma)
	}
	if o.CLAHE {
		if o.CLAHEClipLimit <= 0 {
			return fmt.Errorf("%w: clahe_clip_limit must be positive, got %g", ErrInvalidOptions, o.CLAHEClipLimit)
		}
		if o.CLAHETileSize <= 0 {
			return fmt.Errorf("%w: clahe_tile_size must be positive, got %d", ErrInvalidOptions, o.CLAHETileSize)
		}
	}
	return nil
}

// Apply runs CLAHE then Gaussian blur on a CV_8UC1 image and returns a new Mat.
// The input is never modified; with no filter enabled the result is a clone.
func Apply(ctx context.Context, gray *safe.Mat, opts Options) (*safe.Mat, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatType(gray, gocv.MatTypeCV8UC1, "preprocessing"); err != nil {
		return nil, err
	}

	current, err := gray.Clone()
	if err != nil {
		return nil, err
	}

	steps := []struct {
		enabled bool
		apply   func(*safe.Mat) (*safe.Mat, error)
	}{
		{opts.CLAHE, func(m *safe.Mat) (*safe.Mat, error) {
			return applyCLAHE(m, opts.CLAHEClipLimit, opts.CLAHETileSize)
		}},
		{opts.BlurSigma > 0, func(m *safe.Mat) (*safe.Mat, error) {
			return applyGaussianBlur(m, opts.BlurSigma)
		}},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			current.Close()
			return nil, err
		}
		next, err := step.apply(current)
		current.Close()
		if err != nil {
			return nil, err
		}
		current = next
	}

	return current, nil
}
