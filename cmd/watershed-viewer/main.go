package main

import (
	"fmt"
	"os"
	"runtime"

	"watershed-segmenter/internal/config"
	"watershed-segmenter/internal/controllers"
	"watershed-segmenter/internal/debug/timing"
	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/opencv/memory"
	"watershed-segmenter/internal/pipeline"
	"watershed-segmenter/internal/shutdown"
	"watershed-segmenter/internal/views"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/urfave/cli/v2"
)

const (
	AppName    = "Watershed Viewer"
	AppID      = "com.imageprocessing.watershed-viewer"
	AppVersion = "0.3.0"
)

func main() {
	viewer := &cli.App{
		Name:      "watershed-viewer",
		Usage:     "interactive marker-controlled watershed segmentation",
		ArgsUsage: "[IMAGE]",
		Version:   AppVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
		},
		Action: run,
	}

	if err := viewer.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	appLogger := logger.NewConsoleLogger(cfg.LogLevel)
	memTracker := memory.NewTracker(appLogger)
	timings := timing.NewTracker()
	coord := pipeline.NewCoordinator(memTracker, appLogger, timings)

	fyneApp := app.NewWithID(AppID)
	window := fyneApp.NewWindow(AppName)
	window.Resize(fyne.NewSize(1200, 780))
	window.CenterOnScreen()

	view := views.NewMainView(window)
	controller := controllers.NewMainController(view, coord, appLogger)
	if err := controller.SetInitialParameters(cfg.Parameters); err != nil {
		return err
	}
	if err := controller.SetPreprocess(cfg.Preprocess); err != nil {
		return err
	}

	appLogger.Info("Application", "starting", map[string]interface{}{
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"log_level":  cfg.LogLevel.String(),
		"parameters": cfg.Parameters.ToMap(),
	})

	shut := shutdown.NewManager(appLogger)
	shut.Register("memory", shutdown.Func(func() { memTracker.ReportLeaks() }))
	shut.Register("controller", controller)
	shut.Register("ui", shutdown.Func(func() { fyne.Do(fyneApp.Quit) }))
	shut.Listen()

	window.SetCloseIntercept(func() {
		go shut.Shutdown()
	})

	if c.Args().Present() {
		path := c.Args().First()
		go func() {
			if err := controller.OpenImage(path); err != nil {
				view.ShowError(err)
			}
		}()
	}

	window.ShowAndRun()
	shut.Shutdown()
	return nil
}
