// Package cli wires the segmentation pipeline to a command line.
package cli

import (
	"fmt"
	"io"
	"strings"

	"watershed-segmenter/internal/algorithms/watershed"
	"watershed-segmenter/internal/config"
	"watershed-segmenter/internal/debug/timing"
	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/opencv/memory"
	"watershed-segmenter/internal/pipeline"

	"github.com/urfave/cli/v2"
)

const (
	flagInput       = "input"
	flagProcessed   = "processed"
	flagOut         = "out"
	flagFormat      = "format"
	flagMontage     = "montage"
	flagConfig      = "config"
	flagThresh      = "thresh"
	flagKernel      = "kernel"
	flagKernelShape = "kernel-shape"
	flagThreshPre   = "thresh-pre"
	flagDilateIter  = "dilate-iter"
	flagLogLevel    = "log-level"
	flagTimings     = "timings"
	flagBlur        = "blur"
	flagCLAHE       = "clahe"
	flagFile        = "file"
)

const Version = "0.3.0"

// NewApp builds the command tree. Normal output goes to stdout, logs to stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "watershed",
		Usage:     "marker-controlled watershed segmentation",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "segment",
				Usage:     "segment an image and write every stage",
				UsageText: "watershed segment --input scene.png [--processed gray.png] [--out dir]",
				Flags:     append(parameterFlags(), outputFlags()...),
				Action:    SegmentCommand,
			},
			{
				Name:   "regions",
				Usage:  "print the regions found in an image",
				Flags:  parameterFlags(),
				Action: RegionsCommand,
			},
			{
				Name:      "overlay",
				Usage:     "write the input with watershed ridges painted red",
				UsageText: "watershed overlay --input scene.png --file ridges.png",
				Flags:     overlayFlags(),
				Action:    OverlayCommand,
			},
			{
				Name:   "watch",
				Usage:  "re-run segment whenever the input changes",
				Flags:  append(parameterFlags(), outputFlags()...),
				Action: WatchCommand,
			},
		},
	}
}

func parameterFlags() []cli.Flag {
	flags := []cli.Flag{
		inputFlag(),
		&cli.StringFlag{
			Name:  flagProcessed,
			Usage: "grayscale image `FILE`; derived from --input when omitted",
		},
	}
	flags = append(flags, watershedFlags()...)
	return append(flags,
		&cli.Float64Flag{
			Name:  flagBlur,
			Usage: "Gaussian blur sigma applied to the grayscale image, 0 disables",
		},
		&cli.BoolFlag{
			Name:  flagCLAHE,
			Usage: "equalise the grayscale image with CLAHE first",
		},
		timingsFlag(),
	)
}

// overlayFlags has no preprocessing: the overlay derives its grayscale from --input.
func overlayFlags() []cli.Flag {
	flags := []cli.Flag{
		inputFlag(),
		&cli.StringFlag{
			Name:     flagFile,
			Aliases:  []string{"f"},
			Usage:    "overlay image `FILE`; the extension picks the format",
			Required: true,
		},
	}
	flags = append(flags, watershedFlags()...)
	return append(flags, timingsFlag())
}

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     flagInput,
		Aliases:  []string{"i"},
		Usage:    "original image `FILE`",
		Required: true,
	}
}

func timingsFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  flagTimings,
		Usage: "print per-step timings",
	}
}

func watershedFlags() []cli.Flag {
	defaults := watershed.DefaultParameters()
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  flagThresh,
			Usage: "sure-foreground fraction of the maximum distance",
			Value: defaults.Thresh,
		},
		&cli.StringFlag{
			Name:  flagKernel,
			Usage: "structuring element size, WxH",
			Value: defaults.KernelString(),
		},
		&cli.StringFlag{
			Name:  flagKernelShape,
			Usage: "rect, ellipse or cross",
			Value: string(defaults.KernelShape),
		},
		&cli.Float64Flag{
			Name:  flagThreshPre,
			Usage: "binary threshold applied to the grayscale image",
			Value: defaults.ThreshPre,
		},
		&cli.IntFlag{
			Name:  flagDilateIter,
			Usage: "dilation iterations for the sure background",
			Value: defaults.DilateIterations,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagOut,
			Aliases: []string{"o"},
			Usage:   "output `DIR`",
		},
		&cli.StringFlag{
			Name:  flagFormat,
			Usage: "png, jpeg, tiff or bmp",
		},
		&cli.BoolFlag{
			Name:  flagMontage,
			Usage: "also write a contact sheet of all stages",
			Value: true,
		},
	}
}

// session bundles what every command needs.
type session struct {
	cfg     *config.Config
	logger  logger.Logger
	memory  *memory.Tracker
	timings *timing.Tracker
	coord   *pipeline.Coordinator
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, err
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}

	log := logger.NewZerolog(c.App.ErrWriter, cfg.LogLevel)
	memTracker := memory.NewTracker(log)
	timings := timing.NewTracker()
	timings.SetEnabled(c.Bool(flagTimings))

	return &session{
		cfg:     cfg,
		logger:  log,
		memory:  memTracker,
		timings: timings,
		coord:   pipeline.NewCoordinator(memTracker, log, timings),
	}, nil
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet(flagLogLevel) {
		level, err := logger.ParseLevel(c.String(flagLogLevel))
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	p := &cfg.Parameters
	if c.IsSet(flagThresh) {
		p.Thresh = c.Float64(flagThresh)
	}
	if c.IsSet(flagKernel) {
		k, err := watershed.ParseKernel(c.String(flagKernel))
		if err != nil {
			return err
		}
		p.Kernel = k
	}
	if c.IsSet(flagKernelShape) {
		p.KernelShape = watershed.KernelShape(strings.ToLower(c.String(flagKernelShape)))
	}
	if c.IsSet(flagThreshPre) {
		p.ThreshPre = c.Float64(flagThreshPre)
	}
	if c.IsSet(flagDilateIter) {
		p.DilateIterations = c.Int(flagDilateIter)
	}

	if c.IsSet(flagBlur) {
		cfg.Preprocess.BlurSigma = c.Float64(flagBlur)
	}
	if c.IsSet(flagCLAHE) {
		cfg.Preprocess.CLAHE = c.Bool(flagCLAHE)
	}

	if c.IsSet(flagOut) {
		cfg.Output.Dir = c.String(flagOut)
	}
	if c.IsSet(flagFormat) {
		cfg.Output.Format = config.NormalizeFormat(c.String(flagFormat))
	}
	if c.IsSet(flagMontage) {
		cfg.Output.Montage = c.Bool(flagMontage)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func (s *session) job(c *cli.Context, withOutput bool) pipeline.Job {
	job := pipeline.Job{
		Input:      c.String(flagInput),
		Processed:  c.String(flagProcessed),
		Parameters: s.cfg.Parameters,
		Preprocess: s.cfg.Preprocess,
	}
	if withOutput {
		job.OutputDir = s.cfg.Output.Dir
		job.Format = s.cfg.Output.Format
		job.Montage = s.cfg.Output.Montage
	}
	return job
}

func (s *session) finish(c *cli.Context) {
	if c.Bool(flagTimings) {
		printTimings(c.App.Writer, s.timings.Summary())
	}
	s.memory.ReportLeaks()
}
