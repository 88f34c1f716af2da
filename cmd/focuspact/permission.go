package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/focuspact/focuspact/internal/events"
	"github.com/spf13/cobra"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Inspect or record the usage-access permission",
}

var permissionGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Record that usage access was granted on the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPermission(true)
	},
}

var permissionRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Record that usage access was revoked on the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPermission(false)
	},
}

var permissionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the usage-access permission state",
	Args:  cobra.NoArgs,
	RunE:  runPermissionStatus,
}

func init() {
	permissionCmd.AddCommand(permissionGrantCmd)
	permissionCmd.AddCommand(permissionRevokeCmd)
	permissionCmd.AddCommand(permissionStatusCmd)
	rootCmd.AddCommand(permissionCmd)
}

func setPermission(granted bool) error {
	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.journal.SetPermission(context.Background(), granted); err != nil {
		return err
	}
	return printPermission(a.journal)
}

func runPermissionStatus(cmd *cobra.Command, args []string) error {
	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return printPermission(a.journal)
}

func printPermission(source events.Source) error {
	state, err := source.RequestPermission(context.Background())
	if err != nil {
		return err
	}

	c := color.New(color.FgRed, color.Bold)
	if state == events.PermissionGranted {
		c = color.New(color.FgGreen, color.Bold)
	}
	fmt.Print("Usage access: ")
	_, _ = c.Println(state.String())
	return nil
}
