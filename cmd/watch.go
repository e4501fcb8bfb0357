package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-schedule whenever the roadmap or resource catalog changes",
	RunE:  runWatch,
}

// debounceWindow coalesces editor write bursts into one re-run.
const debounceWindow = 300 * time.Millisecond

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directories: editors replace files on save, and a
	// watch on the file itself dies with the old inode.
	watched := map[string]bool{
		filepath.Base(cfg.RoadmapPath):  true,
		filepath.Base(cfg.ResourcePath): true,
	}
	dirs := map[string]bool{
		filepath.Dir(cfg.RoadmapPath):  true,
		filepath.Dir(cfg.ResourcePath): true,
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	rerun := func() {
		res, err := runScheduling(cmd, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "schedule failed: %v\n", err)
			return
		}
		printResult(cmd, res, cfg.Verbose)
	}
	rerun()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Base(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			fmt.Fprintln(cmd.OutOrStdout(), "--- change detected, re-scheduling ---")
			rerun()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-sig:
			return nil
		}
	}
}
