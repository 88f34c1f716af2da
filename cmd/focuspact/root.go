package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	ownerFlag  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "focuspact",
	Short: "FocusPact - app usage aggregation and limit enforcement",
	Long: `FocusPact turns per-app foreground/background events reported by devices
into daily usage aggregates, keeps per-app time and session limits, and reports
which apps are over their limits today.`,
	Version:      version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to serve when no subcommand is provided
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/focuspact/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Override session.owner (user or device scope)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
