package controllers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"watershed-segmenter/internal/algorithms"
	"watershed-segmenter/internal/algorithms/watershed"
	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/opencv/conversion"
	"watershed-segmenter/internal/pipeline"
	"watershed-segmenter/internal/processing/filters"
	"watershed-segmenter/internal/views"
)

var (
	ErrNoImage    = errors.New("no image loaded")
	ErrNoResult   = errors.New("nothing to save, run a segmentation first")
	ErrSegmenting = errors.New("segmentation already running")
)

// Summary describes the last finished segmentation.
type Summary struct {
	Regions    int
	Boundary   int
	Degenerate bool
}

// MainController connects the viewer to the segmentation pipeline.
type MainController struct {
	view       *views.MainView
	algorithms *algorithms.Manager
	coord      *pipeline.Coordinator
	logger     logger.Logger

	mu         sync.Mutex
	input      *pipeline.Input
	rendered   []image.Image
	preprocess filters.Options
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewMainController(view *views.MainView, coord *pipeline.Coordinator, log logger.Logger) *MainController {
	if log == nil {
		log = logger.NewNop()
	}

	mc := &MainController{
		view:       view,
		algorithms: algorithms.NewManager(coord.Processor()),
		coord:      coord,
		logger:     log,
	}

	view.SetOpenHandler(func() { view.ShowOpenDialog(mc.openAsync) })
	view.SetSegmentHandler(mc.SegmentAsync)
	view.SetSaveHandler(func(format string) {
		view.ShowFolderDialog(func(dir string) {
			if _, err := mc.SaveAll(dir, format); err != nil {
				view.ShowError(err)
			}
		})
	})
	view.SetParameterChangeHandler(mc.SetParameter)
	view.SetParameterResetHandler(mc.ResetParameters)
	view.UpdateParameters(mc.Parameters().ToMap())

	return mc
}

// SetInitialParameters seeds the parameter manager, typically from configuration.
func (mc *MainController) SetInitialParameters(p watershed.Parameters) error {
	alg := mc.algorithms.GetCurrentAlgorithm()
	for name, value := range p.ToMap() {
		if err := mc.algorithms.SetParameter(alg, name, value); err != nil {
			return err
		}
	}
	mc.view.UpdateParameters(mc.Parameters().ToMap())
	return nil
}

// SetPreprocess selects the filters applied to the grayscale image before each run.
func (mc *MainController) SetPreprocess(opts filters.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	mc.mu.Lock()
	mc.preprocess = opts
	mc.mu.Unlock()
	return nil
}

// Parameters returns the current parameter set. The manager only stores validated maps.
func (mc *MainController) Parameters() watershed.Parameters {
	params, err := watershed.ParametersFromMap(mc.algorithms.GetParameters(mc.algorithms.GetCurrentAlgorithm()))
	if err != nil {
		return watershed.DefaultParameters()
	}
	return params
}

// SetParameter applies a user edit; rejected values are reported in the status bar.
func (mc *MainController) SetParameter(name string, value interface{}) {
	if err := mc.algorithms.SetParameter(mc.algorithms.GetCurrentAlgorithm(), name, value); err != nil {
		mc.logger.Warning("MainController", "parameter rejected", map[string]interface{}{
			"parameter": name,
			"error":     err.Error(),
		})
		mc.view.UpdateStatus(err.Error())
		return
	}
	mc.view.UpdateStatus(fmt.Sprintf("%s updated", name))
}

// ResetParameters restores the default parameter set and shows it in the panel.
func (mc *MainController) ResetParameters() {
	if err := mc.algorithms.ResetParameters(mc.algorithms.GetCurrentAlgorithm()); err != nil {
		mc.view.ShowError(err)
		return
	}
	mc.view.UpdateParameters(mc.Parameters().ToMap())
	mc.view.UpdateStatus("Parameters reset to defaults")
}

func (mc *MainController) openAsync(path string) {
	go func() {
		if err := mc.OpenImage(path); err != nil {
			mc.view.ShowError(err)
		}
	}()
}

// OpenImage loads path and derives its grayscale counterpart.
func (mc *MainController) OpenImage(path string) error {
	input, err := mc.coord.Loader().LoadInput(path, "")
	if err != nil {
		return err
	}

	preview, err := conversion.MatToImage(input.Original.Mat)
	if err != nil {
		input.Close()
		return err
	}

	mc.mu.Lock()
	if mc.running {
		mc.mu.Unlock()
		input.Close()
		return ErrSegmenting
	}
	old := mc.input
	mc.input = input
	mc.rendered = nil
	mc.mu.Unlock()
	old.Close()

	o := input.Original
	mc.view.ShowOriginal(preview, o.Width, o.Height, o.Channels, o.Format)
	mc.view.UpdateStatus("Loaded " + path)
	return nil
}

// SegmentAsync runs Segment off the UI goroutine.
func (mc *MainController) SegmentAsync() {
	mc.wg.Add(1)
	go func() {
		defer mc.wg.Done()
		if _, err := mc.Segment(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			mc.view.ShowError(err)
		}
	}()
}

// Segment runs the pipeline on a copy of the loaded image and publishes every stage.
func (mc *MainController) Segment(ctx context.Context) (*Summary, error) {
	mc.mu.Lock()
	if mc.input == nil {
		mc.mu.Unlock()
		return nil, ErrNoImage
	}
	if mc.running {
		mc.mu.Unlock()
		return nil, ErrSegmenting
	}
	ctx, cancel := context.WithCancel(ctx)
	mc.running = true
	mc.cancel = cancel
	input := mc.input
	preprocess := mc.preprocess
	mc.mu.Unlock()

	defer func() {
		cancel()
		mc.mu.Lock()
		mc.running = false
		mc.cancel = nil
		mc.mu.Unlock()
		mc.view.SetBusy(false)
	}()

	mc.view.SetBusy(true)
	mc.view.UpdateStatus("Segmenting...")

	// The original is painted in place, so each run works on a fresh copy.
	original, err := input.Original.Mat.Clone()
	if err != nil {
		return nil, err
	}
	defer original.Close()

	gray := input.Gray.Mat
	if preprocess.Enabled() {
		filtered, err := filters.Apply(ctx, gray, preprocess)
		if err != nil {
			return nil, err
		}
		defer filtered.Close()
		gray = filtered
	}

	result, err := mc.coord.Processor().Segment(ctx, gray, original, mc.Parameters())
	if err != nil {
		mc.view.UpdateStatus("Segmentation failed")
		return nil, err
	}
	defer result.Close()

	_, regions, err := watershed.AnalyzeRegions(result.ModifiedMarkers)
	if err != nil {
		return nil, err
	}

	rendered, err := pipeline.RenderStages(result)
	if err != nil {
		return nil, err
	}

	byStage := make(map[watershed.Stage]image.Image, len(rendered))
	for i, stage := range watershed.Stages {
		byStage[stage] = rendered[i]
	}

	mc.mu.Lock()
	mc.rendered = rendered
	mc.mu.Unlock()

	summary := &Summary{
		Regions:    regions.Count,
		Boundary:   regions.BoundaryPixels,
		Degenerate: result.Degenerate,
	}
	mc.view.ShowStages(byStage, summary.Regions, summary.Boundary, summary.Degenerate)
	mc.view.UpdateStatus("Segmentation complete")

	mc.logger.Info("MainController", "segmentation displayed", map[string]interface{}{
		"regions":    summary.Regions,
		"boundary":   summary.Boundary,
		"degenerate": summary.Degenerate,
	})

	return summary, nil
}

// SaveAll writes the last run's stages and a montage to dir.
func (mc *MainController) SaveAll(dir, format string) ([]string, error) {
	mc.mu.Lock()
	rendered := mc.rendered
	mc.mu.Unlock()

	if rendered == nil {
		return nil, ErrNoResult
	}

	paths, err := mc.coord.Saver().SaveRendered(dir, format, rendered, true)
	if err != nil {
		return paths, err
	}
	mc.view.UpdateStatus(fmt.Sprintf("Saved %d files to %s", len(paths), dir))
	return paths, nil
}

// Shutdown cancels a running segmentation, waits for it and releases the loaded image.
func (mc *MainController) Shutdown() {
	mc.mu.Lock()
	if mc.cancel != nil {
		mc.cancel()
	}
	mc.mu.Unlock()

	mc.wg.Wait()

	mc.mu.Lock()
	mc.input.Close()
	mc.input = nil
	mc.rendered = nil
	mc.mu.Unlock()
}
