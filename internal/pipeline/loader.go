package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/opencv/conversion"
	"watershed-segmenter/internal/opencv/safe"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// otherFormat labels images OpenCV decoded but Go's registered codecs did not recognise.
const otherFormat = "other"

type Loader struct {
	memTracker safe.MemoryTracker
	logger     logger.Logger
	timing     TimingTracker
}

func NewLoader(memTracker safe.MemoryTracker, log logger.Logger, timing TimingTracker) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	if timing == nil {
		timing = nopTiming{}
	}
	return &Loader{memTracker: memTracker, logger: log, timing: timing}
}

// LoadFile decodes path in color (CV_8UC3) or grayscale (CV_8UC1).
func (l *Loader) LoadFile(path string, grayscale bool) (*ImageData, error) {
	ctx := l.timing.StartTiming("load_file")
	defer l.timing.EndTiming(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	l.logger.Debug("ImageLoader", "image data read", map[string]interface{}{
		"path":       path,
		"size_bytes": len(data),
	})

	imageData, err := l.LoadBytes(data, grayscale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	imageData.Path = path
	return imageData, nil
}

func (l *Loader) LoadBytes(data []byte, grayscale bool) (*ImageData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", safe.ErrInvalidInput)
	}

	// Go only names the container; OpenCV reads more formats (webp, pnm, jp2) than Go can.
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		l.logger.Debug("ImageLoader", "container not recognised, leaving it to OpenCV", map[string]interface{}{
			"error": err.Error(),
		})
		format = otherFormat
	}

	flags := gocv.IMReadColor
	tag := "loaded_color"
	if grayscale {
		flags = gocv.IMReadGrayScale
		tag = "loaded_gray"
	}

	cvCtx := l.timing.StartTiming("opencv_decode")
	mat, err := gocv.IMDecode(data, flags)
	l.timing.EndTiming(cvCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image with OpenCV: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: OpenCV could not decode %d bytes", safe.ErrInvalidInput, len(data))
	}
	if err := safe.ValidateDimensions(mat.Cols(), mat.Rows(), "image load"); err != nil {
		mat.Close()
		return nil, err
	}

	safeMat, err := safe.Adopt(mat, l.memTracker, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	imageData := &ImageData{
		Mat:      safeMat,
		Width:    safeMat.Cols(),
		Height:   safeMat.Rows(),
		Channels: safeMat.Channels(),
		Format:   format,
	}

	l.logger.Info("ImageLoader", "image loaded", map[string]interface{}{
		"width":    imageData.Width,
		"height":   imageData.Height,
		"channels": imageData.Channels,
		"format":   format,
	})

	return imageData, nil
}

// LoadInput loads the original image and its grayscale counterpart. With processedPath
// empty the grayscale image is derived from the original.
func (l *Loader) LoadInput(originalPath, processedPath string) (*Input, error) {
	original, err := l.LoadFile(originalPath, false)
	if err != nil {
		return nil, err
	}

	var gray *ImageData
	if processedPath != "" {
		gray, err = l.LoadFile(processedPath, true)
	} else {
		gray, err = l.deriveGray(original)
	}
	if err != nil {
		original.Close()
		return nil, err
	}

	if gray.Width != original.Width || gray.Height != original.Height {
		original.Close()
		gray.Close()
		return nil, fmt.Errorf("%w: processed image is %dx%d, original is %dx%d", safe.ErrInvalidInput,
			gray.Width, gray.Height, original.Width, original.Height)
	}

	return &Input{Original: original, Gray: gray}, nil
}

func (l *Loader) deriveGray(original *ImageData) (*ImageData, error) {
	mat, err := conversion.ConvertToGrayscale(original.Mat)
	if err != nil {
		return nil, fmt.Errorf("failed to derive grayscale image: %w", err)
	}
	return &ImageData{
		Mat:      mat,
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
		Format:   original.Format,
		Path:     original.Path,
	}, nil
}
