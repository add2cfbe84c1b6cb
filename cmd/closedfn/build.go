package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"closedfn/internal/config"
	"closedfn/internal/host"
	"closedfn/internal/plugin"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var buildCmd = &cobra.Command{
	Use:   "build [entry]",
	Short: "Build the entry into a single bundle",
	Long: `Builds the entry module and everything it imports. Closed functions are
compiled and bundled separately, then spliced back into their host modules.

The entry defaults to build.entry from the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuildCmd,
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg.Build.Entry = args[0]
	}
	if cfg.Build.Entry == "" {
		return fmt.Errorf("no entry: pass one or set build.entry in %s", config.DefaultFileName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	res, stats, err := build(ctx, cfg)
	if err != nil {
		fmt.Fprintln(out, renderFailure(err))
		return err
	}
	fmt.Fprintln(out, renderReport(cfg, res, stats))
	if len(res.Errors) > 0 {
		return fmt.Errorf("build failed with %d errors", len(res.Errors))
	}
	return nil
}

// build runs one host build with the closed-function plugin installed.
func build(ctx context.Context, c *config.Config) (*host.Result, plugin.Stats, error) {
	p := plugin.New(c)
	compiler := &host.Compiler{Config: c, Plugins: []host.Plugin{p}}

	logger.Debug("starting build",
		zap.String("entry", c.Build.Entry),
		zap.String("mode", string(c.Build.Mode)))

	res, err := compiler.Run(ctx)
	if err != nil {
		logger.Error("build aborted", zap.Error(err))
		return nil, p.Stats(), err
	}
	logger.Info("build finished",
		zap.Int("modules", len(res.Modules)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("closed_functions", p.Stats().Mounted))
	return res, p.Stats(), nil
}
