package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"watershed-segmenter/internal/debug/timing"
	"watershed-segmenter/internal/pipeline"

	"github.com/urfave/cli/v2"
)

func SegmentCommand(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.finish(c)

	report, err := s.coord.Run(c.Context, s.job(c, true))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s: %dx%d, %s\n", report.Input, report.Width, report.Height, report.Summary)
	if report.Degenerate {
		fmt.Fprintln(c.App.Writer, "warning: flat distance map, no sure foreground")
	}
	for _, path := range report.Outputs {
		fmt.Fprintln(c.App.Writer, path)
	}
	return nil
}

func RegionsCommand(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.finish(c)

	report, err := s.coord.Run(c.Context, s.job(c, false))
	if err != nil {
		return err
	}

	printRegions(c.App.Writer, report)
	return nil
}

func OverlayCommand(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.finish(c)

	path := c.String(flagFile)
	if _, err := pipeline.FormatFromPath(path); err != nil {
		return err
	}

	img, err := s.coord.Overlay(c.Context, c.String(flagInput), s.cfg.Parameters)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := s.coord.Saver().SaveImage(path, img); err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, path)
	return nil
}

func printRegions(w io.Writer, report *pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tAREA\tBOUNDS\tCENTROID")
	for _, r := range report.Regions {
		fmt.Fprintf(tw, "%d\t%d\t%v\t(%.1f, %.1f)\n", r.Label, r.Area, r.Bounds, r.CentroidX, r.CentroidY)
	}
	tw.Flush()
	fmt.Fprintln(w, report.Summary)
}

func printTimings(w io.Writer, stats []timing.Stat) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tCOUNT\tAVERAGE\tMAX")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\n", s.Operation, s.Count, s.Average, s.Max)
	}
	tw.Flush()
}
