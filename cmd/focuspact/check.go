package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/policy"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check APP",
	Short: "Check whether an app is restricted right now",
	Long:  `Aggregate today's usage of an app, compare it with the app's limits and print the restriction decision.`,
	Example: `  focuspact check com.example.chat
  focuspact --owner device-42 check com.example.maps`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	appID := args[0]

	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	now := a.clock.Now()

	stats, err := a.usage.GetUsageStats(ctx, usage.StartOfDay(now).AddDate(0, 0, -1), now)
	if err != nil {
		return fmt.Errorf("failed to get usage stats: %w", err)
	}
	limit, err := a.limits.GetLimit(ctx, appID)
	if err != nil {
		return err
	}

	app, _ := stats.Find(appID)
	app.AppID = appID
	today := policy.TodayOf(app)

	decision, err := a.policy.Evaluate(ctx, today, limit)
	if err != nil {
		return err
	}

	printCheckResult(app, limit, decision, policy.Remaining(today, limit))
	return nil
}

func printCheckResult(app usage.AppUsage, limit *limits.AppLimit, decision policy.Decision, budget policy.Budget) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Printf("App:        %s\n", app.AppID)
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Today:      %s in %d session(s)\n", usage.FormatDuration(app.TodayDuration), app.TodaySessions)
	fmt.Printf("Yesterday:  %s in %d session(s)\n", usage.FormatDuration(app.YesterdayDuration), app.YesterdaySessions)
	if app.LastForegroundEnteredAt != nil {
		fmt.Printf("In use:     since %s\n", app.LastForegroundEnteredAt.Format("15:04"))
	}
	fmt.Println()

	if limit == nil {
		fmt.Println("Limits:     none configured")
	} else {
		fmt.Printf("Time limit:    %s\n", describeTime(*limit))
		fmt.Printf("Session limit: %s\n", describeSessions(*limit))
	}
	fmt.Println()

	_, _ = cyan.Print("Decision:   ")
	if decision.IsRestricted {
		_, _ = red.Println("RESTRICTED")
		for _, r := range decision.Reasons() {
			fmt.Printf("            → %s limit reached\n", r)
		}
	} else {
		_, _ = green.Println("ALLOWED")
	}

	if budget.HasTime && !decision.TimeLimitExceeded {
		_, _ = yellow.Printf("Remaining:  %s\n", usage.FormatDuration(budget.TimeRemaining))
	}
	if budget.HasSessions && !decision.SessionLimitExceeded {
		_, _ = yellow.Printf("Sessions:   %d left today\n", budget.SessionsRemaining)
	}

	fmt.Println()
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

func minutes(m uint32) time.Duration {
	return time.Duration(m) * time.Minute
}
