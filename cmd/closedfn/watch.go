package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"closedfn/internal/config"
	"closedfn/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var debounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [entry]",
	Short: "Rebuild whenever a source file changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatchCmd,
}

func init() {
	watchCmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Quiet period before a rebuild")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg.Build.Entry = args[0]
	}
	if cfg.Build.Entry == "" {
		return fmt.Errorf("no entry: pass one or set build.entry in %s", config.DefaultFileName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	rebuild := func(ctx context.Context, changed []string) {
		logger.Info("rebuilding", zap.Strings("changed", changed))
		res, stats, err := build(ctx, cfg)
		if err != nil {
			fmt.Fprintln(out, renderFailure(err))
			return
		}
		fmt.Fprintln(out, renderReport(cfg, res, stats))
	}
	rebuild(ctx, nil)

	root := workspace
	if root == "" {
		root = filepath.Dir(cfg.Build.Entry)
	}
	w, err := watch.New(root, cfg.Resolve.Extensions, rebuild,
		watch.WithDebounce(debounce),
		watch.WithIgnore(filepath.Dir(cfg.Build.Outfile), cfg.Build.TempDir))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	fmt.Fprintln(out, mutedStyle.Render("watching "+root+" (ctrl-c to stop)"))
	<-ctx.Done()
	return nil
}
