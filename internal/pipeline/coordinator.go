package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"watershed-segmenter/internal/algorithms"
	"watershed-segmenter/internal/algorithms/watershed"
	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/opencv/conversion"
	"watershed-segmenter/internal/opencv/safe"
	"watershed-segmenter/internal/processing/filters"
)

// Job describes one load, segment, analyse and save run.
type Job struct {
	Input      string
	Processed  string // optional grayscale input; derived from Input when empty
	OutputDir  string // no files are written when empty
	Format     string
	Montage    bool
	Parameters watershed.Parameters
	Preprocess filters.Options // applied to the grayscale image before segmenting
}

type Report struct {
	Input      string
	Width      int
	Height     int
	Parameters watershed.Parameters
	Labels     int
	Degenerate bool
	Regions    []watershed.Region
	Summary    watershed.RegionSummary
	Outputs    []string
	Elapsed    time.Duration
}

type Coordinator struct {
	loader    *Loader
	saver     *Saver
	processor *watershed.Processor
	logger    logger.Logger
	timing    TimingTracker
}

func NewCoordinator(memTracker safe.MemoryTracker, log logger.Logger, timing TimingTracker) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	if timing == nil {
		timing = nopTiming{}
	}
	return &Coordinator{
		loader: NewLoader(memTracker, log, timing),
		saver:  NewSaver(log, timing),
		processor: watershed.NewProcessor(
			watershed.WithLogger(log),
			watershed.WithMemoryTracker(memTracker),
			watershed.WithTimingTracker(timing),
		),
		logger: log,
		timing: timing,
	}
}

func (c *Coordinator) Loader() *Loader { return c.loader }

func (c *Coordinator) Saver() *Saver { return c.saver }

func (c *Coordinator) Processor() *watershed.Processor { return c.processor }

func (c *Coordinator) Run(ctx context.Context, job Job) (*Report, error) {
	start := time.Now()
	tctx := c.timing.StartTiming("pipeline.run")
	defer c.timing.EndTiming(tctx)

	if err := job.Parameters.Validate(); err != nil {
		return nil, err
	}
	if err := job.Preprocess.Validate(); err != nil {
		return nil, err
	}

	input, err := c.loader.LoadInput(job.Input, job.Processed)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	if job.Preprocess.Enabled() {
		if err := c.preprocess(ctx, input, job.Preprocess); err != nil {
			return nil, err
		}
	}

	result, err := c.processor.Segment(ctx, input.Gray.Mat, input.Original.Mat, job.Parameters)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}
	defer result.Close()

	report, err := c.analyse(job, input, result)
	if err != nil {
		return nil, err
	}

	if job.OutputDir != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Outputs, err = c.saver.SaveStages(job.OutputDir, job.Format, result, job.Montage)
		if err != nil {
			return nil, err
		}
	}

	report.Elapsed = time.Since(start)

	c.logger.Info("Coordinator", "segmentation run complete", map[string]interface{}{
		"input":      job.Input,
		"regions":    report.Summary.Count,
		"boundary":   report.Summary.BoundaryPixels,
		"degenerate": report.Degenerate,
		"outputs":    len(report.Outputs),
		"elapsed_ms": report.Elapsed.Milliseconds(),
	})

	return report, nil
}

// preprocess replaces the grayscale image of input with its filtered version.
func (c *Coordinator) preprocess(ctx context.Context, input *Input, opts filters.Options) error {
	tctx := c.timing.StartTiming("pipeline.preprocess")
	defer c.timing.EndTiming(tctx)

	filtered, err := filters.Apply(ctx, input.Gray.Mat, opts)
	if err != nil {
		return fmt.Errorf("preprocessing failed: %w", err)
	}
	input.Gray.Mat.Close()
	input.Gray.Mat = filtered

	c.logger.Debug("Coordinator", "grayscale image preprocessed", map[string]interface{}{
		"blur_sigma": opts.BlurSigma,
		"clahe":      opts.CLAHE,
	})
	return nil
}

func (c *Coordinator) analyse(job Job, input *Input, result *watershed.Result) (*Report, error) {
	tctx := c.timing.StartTiming("pipeline.analyse")
	defer c.timing.EndTiming(tctx)

	regions, summary, err := watershed.AnalyzeRegions(result.ModifiedMarkers)
	if err != nil {
		return nil, fmt.Errorf("region analysis failed: %w", err)
	}

	return &Report{
		Input:      job.Input,
		Width:      input.Original.Width,
		Height:     input.Original.Height,
		Parameters: result.Parameters,
		Labels:     result.Labels,
		Degenerate: result.Degenerate,
		Regions:    regions,
		Summary:    summary,
	}, nil
}

// Overlay loads path and returns it with the watershed ridges painted red. The run goes
// through an algorithm manager holding params, the same way the viewer stores edits.
func (c *Coordinator) Overlay(ctx context.Context, path string, params watershed.Parameters) (image.Image, error) {
	tctx := c.timing.StartTiming("pipeline.overlay")
	defer c.timing.EndTiming(tctx)

	if err := params.Validate(); err != nil {
		return nil, err
	}

	manager := algorithms.NewManager(c.processor)
	name := manager.GetCurrentAlgorithm()
	for key, value := range params.ToMap() {
		if err := manager.SetParameter(name, key, value); err != nil {
			return nil, err
		}
	}

	img, err := c.loader.LoadFile(path, false)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	painted, err := manager.ProcessCurrent(ctx, img.Mat)
	if err != nil {
		return nil, fmt.Errorf("overlay failed: %w", err)
	}
	defer painted.Close()

	c.logger.Debug("Coordinator", "overlay rendered", map[string]interface{}{
		"input":  path,
		"width":  img.Width,
		"height": img.Height,
	})

	return conversion.MatToImage(painted)
}
