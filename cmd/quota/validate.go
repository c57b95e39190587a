package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"mercator-hq/quota/pkg/cli"
	"mercator-hq/quota/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and environment overrides,
and report every invalid field.

Examples:
  # Validate the default file
  quota validate

  # Validate another file and print the effective configuration as JSON
  quota validate --config /etc/quota/quota.yaml --format json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cfgFile, false)
	if err != nil {
		return err
	}

	return writeValidation(cmd.OutOrStdout(), format, cfg)
}

// effectiveConfig is the printable summary of a validated file.
type effectiveConfig struct {
	Path           string             `json:"path"`
	Quota          config.QuotaConfig `json:"quota"`
	Admin          string             `json:"admin_listen_address"`
	MetricsEnabled bool               `json:"metrics_enabled"`
	JournalEnabled bool               `json:"journal_enabled"`
}

func (e effectiveConfig) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, `✓ %s is valid
  strategy:          %s
  global:            %s (%s)
  session capacity:  %s
  identity capacity: %s
  identity prefix:   %q
  admin:             %s
  metrics:           %t
  journal:           %t
`,
		e.Path,
		e.Quota.Strategy,
		e.Quota.GlobalName, e.Quota.GlobalCapacity,
		e.Quota.SessionCapacity,
		e.Quota.IdentityCapacity,
		e.Quota.IdentityPrefix,
		e.Admin,
		e.MetricsEnabled,
		e.JournalEnabled,
	)
	return err
}

func writeValidation(w io.Writer, format cli.OutputFormat, cfg *config.Config) error {
	return cli.NewFormatter(format).FormatTo(w, effectiveConfig{
		Path:           cfgFile,
		Quota:          cfg.Quota,
		Admin:          cfg.Admin.ListenAddress,
		MetricsEnabled: cfg.Telemetry.Metrics.IsEnabled(),
		JournalEnabled: cfg.Journal.Enabled,
	})
}
