package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Arbor Gatekeeper - admission control and tiered rate limiting",
	Long: `Arbor Gatekeeper is the traffic front end for the Arbor graph service.

It proxies API requests to the upstream graph service after running them
through three gates:
  - Admission control based on live memory, CPU and queue pressure
  - Tiered rate limits per identity and endpoint category
  - Volume caps and deny-lists for shared curated repositories

Rejections are structured: 503 with a reason code for resource pressure,
429 with Retry-After and quota headers for rate limits.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus environment when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
