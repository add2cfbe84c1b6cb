package main

import (
	"fmt"
	"os"
	"path/filepath"

	"closedfn/internal/config"

	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default closedfn.yaml into the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			ws := workspace
			if ws == "" {
				var err error
				if ws, err = os.Getwd(); err != nil {
					return err
				}
			}
			path = filepath.Join(ws, config.DefaultFileName)
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
