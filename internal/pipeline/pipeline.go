package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"watershed-segmenter/internal/opencv/safe"
)

// TimingTracker times pipeline stages; *timing.Tracker satisfies it.
type TimingTracker interface {
	StartTiming(operation string) context.Context
	EndTiming(ctx context.Context)
}

type nopTiming struct{}

func (nopTiming) StartTiming(string) context.Context { return context.Background() }
func (nopTiming) EndTiming(context.Context)          {}

// ImageData is a decoded image together with where it came from.
type ImageData struct {
	Mat      *safe.Mat
	Width    int
	Height   int
	Channels int
	Format   string
	Path     string
}

func (d *ImageData) Close() {
	if d != nil && d.Mat != nil {
		d.Mat.Close()
	}
}

// Input is the pair of images a segmentation run consumes.
type Input struct {
	Original *ImageData // CV_8UC3, painted by the run
	Gray     *ImageData // CV_8UC1
}

func (in *Input) Close() {
	if in == nil {
		return
	}
	in.Original.Close()
	in.Gray.Close()
}

// Extension returns the file extension written for an output format.
func Extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "tiff":
		return ".tif"
	default:
		return "." + format
	}
}

// FormatFromPath infers the output format from a file name.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".tif", ".tiff":
		return "tiff", nil
	case ".bmp":
		return "bmp", nil
	default:
		return "", fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
}
