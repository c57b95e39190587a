package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/quota/pkg/cli"
	"mercator-hq/quota/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "quota",
	Short: "Hierarchical quota engine",
	Long: `Quota enforces three levels of budgets on a shared resource:

  - a global budget shared by the whole process
  - a session budget created fresh for every unit of work
  - an identity budget shared by all sessions of the same identity

An acquisition succeeds only if every level can cover it, and a rejected
acquisition leaves every level untouched.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "quota.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads path with environment overrides. When allowMissing is
// set, a missing file yields the defaults.
func loadConfig(path string, allowMissing bool) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err == nil {
		return cfg, nil
	}
	if allowMissing && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, cli.NewConfigError(path, err)
}
