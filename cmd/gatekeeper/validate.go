package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"arbor-hq/gatekeeper/pkg/cli"
	"arbor-hq/gatekeeper/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a gatekeeper configuration file without starting the server.

The validation pass checks:
  - Threshold ranges for the admission controller
  - Tier ordering of the rate-limit tables (a higher tier never has a
    smaller budget than a lower one)
  - Repository volume cap sanity (daily cap not below hourly)
  - Counter store backend selection

All violations are reported at once, not just the first.

Examples:
  # Validate the default config path
  gatekeeper validate --config config.yaml

  # Machine-readable output
  gatekeeper validate --config config.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return cli.NewConfigError("", "a config file is required: pass --config")
	}

	_, err := config.LoadWithEnvOverrides(cfgFile)
	if err == nil {
		fmt.Printf("Configuration valid: %s\n", cfgFile)
		return nil
	}

	var verr config.ValidationError
	if errors.As(err, &verr) {
		formatter := cli.NewFormatter(cli.OutputFormat(validateFlags.format))
		if fmtErr := formatter.FormatTo(cmd.OutOrStdout(), verr.Errors); fmtErr != nil {
			return fmtErr
		}
		return cli.NewConfigError("", fmt.Sprintf("%d validation error(s)", len(verr.Errors)))
	}
	return cli.NewConfigError("", err.Error())
}
