package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"watershed-segmenter/internal/algorithms/watershed"
	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/opencv/conversion"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const (
	montageColumns = 4
	montageCell    = 256
	montagePadding = 8
	montageName    = "montage"
)

var montageBackground = color.NRGBA{R: 32, G: 32, B: 32, A: 255}

type Saver struct {
	logger logger.Logger
	timing TimingTracker
}

func NewSaver(log logger.Logger, timing TimingTracker) *Saver {
	if log == nil {
		log = logger.NewNop()
	}
	if timing == nil {
		timing = nopTiming{}
	}
	return &Saver{logger: log, timing: timing}
}

// Encode writes img to w in one of png, jpeg, tiff or bmp.
func (s *Saver) Encode(w io.Writer, img image.Image, format string) error {
	var err error
	switch format {
	case "png":
		err = png.Encode(w, img)
	case "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "bmp":
		err = bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}

// SaveImage writes img to path, picking the format from the extension.
func (s *Saver) SaveImage(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	return s.writeFile(path, img, format)
}

func (s *Saver) writeFile(path string, img image.Image, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := s.Encode(f, img, format); err != nil {
		return err
	}

	s.logger.Debug("ImageSaver", "image saved", map[string]interface{}{
		"path":   path,
		"format": format,
	})
	return nil
}

// RenderStages converts every output of result into a displayable image, in Stages order.
func RenderStages(result *watershed.Result) ([]image.Image, error) {
	images := make([]image.Image, 0, len(watershed.Stages))
	for _, stage := range watershed.Stages {
		img, err := conversion.Render(result.Image(stage))
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", stage, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// SaveStages writes each stage to <dir>/<slug><ext> and, when montage is set, a contact
// sheet of all stages. It returns the paths written.
func (s *Saver) SaveStages(dir, format string, result *watershed.Result, montage bool) ([]string, error) {
	images, err := RenderStages(result)
	if err != nil {
		return nil, err
	}
	return s.SaveRendered(dir, format, images, montage)
}

// SaveRendered writes images produced by RenderStages.
func (s *Saver) SaveRendered(dir, format string, images []image.Image, montage bool) ([]string, error) {
	ctx := s.timing.StartTiming("save_stages")
	defer s.timing.EndTiming(ctx)

	if len(images) != len(watershed.Stages) {
		return nil, fmt.Errorf("expected %d stage images, got %d", len(watershed.Stages), len(images))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(images)+1)
	for i, stage := range watershed.Stages {
		path := filepath.Join(dir, stage.Slug()+Extension(format))
		if err := s.writeFile(path, images[i], format); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if montage {
		path := filepath.Join(dir, montageName+Extension(format))
		if err := s.writeFile(path, Montage(images), format); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	s.logger.Info("ImageSaver", "stages saved", map[string]interface{}{
		"dir":    dir,
		"format": format,
		"files":  len(paths),
	})

	return paths, nil
}

// Montage lays images out on a grid, each fitted into a square cell.
func Montage(images []image.Image) *image.NRGBA {
	if len(images) == 0 {
		return imaging.New(montageCell, montageCell, montageBackground)
	}

	cols := montageColumns
	if len(images) < cols {
		cols = len(images)
	}
	rows := (len(images) + cols - 1) / cols

	width := cols*montageCell + (cols+1)*montagePadding
	height := rows*montageCell + (rows+1)*montagePadding
	sheet := imaging.New(width, height, montageBackground)

	for i, img := range images {
		thumb := imaging.Fit(img, montageCell, montageCell, imaging.NearestNeighbor)
		col, row := i%cols, i/cols
		x := montagePadding + col*(montageCell+montagePadding) + (montageCell-thumb.Bounds().Dx())/2
		y := montagePadding + row*(montageCell+montagePadding) + (montageCell-thumb.Bounds().Dy())/2
		sheet = imaging.Paste(sheet, thumb, image.Pt(x, y))
	}

	return sheet
}
