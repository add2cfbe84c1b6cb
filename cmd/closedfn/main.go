// Command closedfn bundles TypeScript projects whose $closed functions are
// compiled into self-contained, capture-free artifacts.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"closedfn/internal/config"
	"closedfn/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Build flags shared by build and watch
	modeFlag    string
	outfileFlag string
	keepTemp    bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "closedfn",
	Short: "closedfn - bundle TypeScript with isolated $closed functions",
	Long: `closedfn builds a TypeScript or JavaScript entry into a single bundle.

Any function whose body is a single "$closed: { ... }" block is compiled on its
own, checked for captured outer-scope names, bundled with its imports and
spliced back in place of the original body.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			if ws, err = os.Getwd(); err != nil {
				return err
			}
		}
		path := configPath
		if path == "" {
			path = filepath.Join(ws, config.DefaultFileName)
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := logging.Initialize(ws, cfg.Logging.Settings()); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		logging.Boot("closedfn %s starting (config %s)", version, path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// applyFlags lets explicit command-line flags win over file and environment settings.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	if f := cmd.Flags().Lookup("mode"); f != nil && f.Changed {
		c.Build.Mode = config.Mode(modeFlag)
	}
	if f := cmd.Flags().Lookup("outfile"); f != nil && f.Changed {
		c.Build.Outfile = outfileFlag
	}
	if f := cmd.Flags().Lookup("keep-temp"); f != nil && f.Changed {
		c.Build.KeepTemp = keepTemp
	}
	if verbose {
		c.Logging.DebugMode = true
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./closedfn.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	for _, cmd := range []*cobra.Command{buildCmd, watchCmd} {
		cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Build mode: none, development, production")
		cmd.Flags().StringVarP(&outfileFlag, "outfile", "o", "", "Output bundle path")
		cmd.Flags().BoolVar(&keepTemp, "keep-temp", false, "Keep satellite sources and artifacts")
	}

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
