package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/spf13/cobra"
)

var (
	limitsAppName string
	limitsPublic  bool
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage per-app time and session limits",
}

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured limits",
	Args:  cobra.NoArgs,
	RunE:  runLimitsList,
}

var limitsSetCmd = &cobra.Command{
	Use:   "set APP TYPE VALUE",
	Short: "Set and enable a limit",
	Long:  `Set and enable the time (minutes) or sessions (count) limit of an app. The other limit type is left untouched.`,
	Example: `  focuspact limits set com.example.chat time 45
  focuspact limits set com.example.chat sessions 3 --name "Chat"`,
	Args: cobra.ExactArgs(3),
	RunE: runLimitsSet,
}

var limitsRemoveCmd = &cobra.Command{
	Use:   "remove APP TYPE",
	Short: "Disable and clear a limit",
	Args:  cobra.ExactArgs(2),
	RunE:  runLimitsRemove,
}

func init() {
	limitsSetCmd.Flags().StringVar(&limitsAppName, "name", "", "Display name stored with the limit")
	limitsSetCmd.Flags().BoolVar(&limitsPublic, "public", false, "Mark the limit as public")

	limitsCmd.AddCommand(limitsListCmd)
	limitsCmd.AddCommand(limitsSetCmd)
	limitsCmd.AddCommand(limitsRemoveCmd)
	rootCmd.AddCommand(limitsCmd)
}

func runLimitsList(cmd *cobra.Command, args []string) error {
	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.limits.ListLimits(context.Background())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No limits configured.")
		return nil
	}

	fmt.Printf("%-40s %-20s %10s %10s\n", "APP", "NAME", "TIME", "SESSIONS")
	for _, l := range list {
		fmt.Printf("%-40s %-20s %10s %10s\n", l.AppID, l.AppName, describeTime(l), describeSessions(l))
	}
	return nil
}

func runLimitsSet(cmd *cobra.Command, args []string) error {
	appID := args[0]
	limitType, err := storage.ParseLimitType(args[1])
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid limit value %q: must be a non-negative integer", args[2])
	}

	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	meta := limits.Meta{AppName: limitsAppName}
	if cmd.Flags().Changed("public") {
		meta.Public = &limitsPublic
	}

	limit, err := a.limits.SetLimitWithMeta(context.Background(), appID, limitType, uint32(value), meta)
	if err != nil {
		return err
	}

	_, _ = color.New(color.FgGreen).Printf("✓ %s limit set for %s\n", limitType, appID)
	fmt.Printf("  time: %s  sessions: %s\n", describeTime(*limit), describeSessions(*limit))
	return nil
}

func runLimitsRemove(cmd *cobra.Command, args []string) error {
	appID := args[0]
	limitType, err := storage.ParseLimitType(args[1])
	if err != nil {
		return err
	}

	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	limit, err := a.limits.RemoveLimit(context.Background(), appID, limitType)
	if err != nil {
		return err
	}

	_, _ = color.New(color.FgGreen).Printf("✓ %s limit removed for %s\n", limitType, appID)
	if limit == nil {
		fmt.Println("  no limits remain for this app")
	} else {
		fmt.Printf("  time: %s  sessions: %s\n", describeTime(*limit), describeSessions(*limit))
	}
	return nil
}

func describeTime(l limits.AppLimit) string {
	if !l.HasTimeLimit() {
		return "-"
	}
	return usage.FormatDuration(minutes(*l.TimeLimitMinutes))
}

func describeSessions(l limits.AppLimit) string {
	if !l.HasSessionLimit() {
		return "-"
	}
	return strconv.FormatUint(uint64(*l.SessionLimitCount), 10)
}
