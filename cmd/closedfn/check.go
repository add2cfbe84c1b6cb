package main

import (
	"context"
	"fmt"
	"os"

	"closedfn/internal/compiler"
	"closedfn/internal/extract"
	"closedfn/internal/mount"
	"closedfn/internal/satellite"
	"closedfn/internal/syntax"
	"closedfn/internal/tsconfig"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Check closed functions without bundling",
	Long: `Validates $closed placement and reports every name a closed function
captures from outside its own scope. Nothing is written.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckCmd,
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	var all error
	checked := 0

	for _, path := range args {
		found, err := checkFile(ctx, path)
		if err != nil {
			all = multierr.Append(all, err)
			continue
		}
		if found {
			checked++
		}
	}

	errs := multierr.Errors(all)
	fmt.Fprintln(cmd.OutOrStdout(), renderCheck(len(args), checked, errs))
	if len(errs) > 0 {
		return fmt.Errorf("check failed with %d errors", len(errs))
	}
	return nil
}

// checkFile reports whether path holds a closed function, and every problem with it.
func checkFile(ctx context.Context, path string) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if !cfg.Build.IsSourceKind(path) || !extract.HasMarker(src) {
		return false, nil
	}

	unit, err := syntax.Parse(ctx, path, src)
	if err != nil {
		return false, err
	}
	defer unit.Close()

	res, err := extract.Extract(unit)
	if err != nil {
		return true, err
	}
	if res.Function == nil {
		return false, nil
	}

	raw, err := tsconfig.EmitRaw(path, cfg.Compiler.Tsconfig)
	if err != nil {
		return true, err
	}
	c := compiler.New(compiler.Options{Globals: cfg.Compiler.Globals, Tsconfig: raw, Target: cfg.Build.Target})
	prog, err := c.CreateProgram(ctx, path, []byte(satellite.SatelliteText(string(src), res)))
	if err != nil {
		return true, err
	}
	defer prog.Close()

	logger.Debug("checked closed function", zap.String("file", path), zap.String("function", res.Function.Name))
	return true, mount.CaptureErrors(path, prog.PreEmitDiagnostics())
}
