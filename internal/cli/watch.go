package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/shutdown"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
)

const watchDebounce = 250 * time.Millisecond

func WatchCommand(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.finish(c)

	shut := shutdown.NewManager(s.logger)
	shut.Listen()
	defer shut.Shutdown()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	shut.Register("watch", shutdown.Func(cancel))

	job := s.job(c, true)
	paths := []string{job.Input}
	if job.Processed != "" {
		paths = append(paths, job.Processed)
	}

	run := func() {
		report, err := s.coord.Run(ctx, job)
		if err != nil {
			s.logger.Error("Watch", err, map[string]interface{}{"input": job.Input})
			return
		}
		fmt.Fprintf(c.App.Writer, "%s: %s\n", report.Input, report.Summary)
		if c.Bool(flagTimings) {
			printTimings(c.App.Writer, s.timings.Summary())
			s.timings.Reset("")
		}
	}

	run()
	return watchFiles(ctx, paths, watchDebounce, s.logger, run)
}

// watchFiles calls onChange once per burst of writes to any of paths until ctx ends.
// Parent directories are watched so editors that replace files by rename are seen.
func watchFiles(ctx context.Context, paths []string, debounce time.Duration, log logger.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	log.Info("Watch", "watching for changes", map[string]interface{}{"files": len(targets)})

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || !targets[name] {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				log.Debug("Watch", "change detected", map[string]interface{}{
					"file": name,
					"op":   ev.Op.String(),
				})
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warning("Watch", "watcher error", map[string]interface{}{"error": err.Error()})
		case <-timer.C:
			onChange()
		}
	}
}
