package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/spf13/cobra"
)

var (
	statsPeriod string
	statsStart  string
	statsEnd    string
	statsJSON   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated app usage",
	Long: `Aggregate the event journal and print per-app usage for today and
yesterday. Use --period to select a display window or --start/--end for an
explicit one.`,
	Example: `  focuspact stats
  focuspact stats --period week
  focuspact stats --start 2026-05-01T00:00:00Z --end 2026-05-02T00:00:00Z --json`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsPeriod, "period", "", "Display window: today, yesterday, week, twoWeeks, threeWeeks, month")
	statsCmd.Flags().StringVar(&statsStart, "start", "", "Window start (RFC 3339)")
	statsCmd.Flags().StringVar(&statsEnd, "end", "", "Window end (RFC 3339, defaults to now)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print a versioned usage report as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	start, end, err := statsWindow(a.clock.Now())
	if err != nil {
		return err
	}

	stats, err := a.usage.GetUsageStats(context.Background(), start, end)
	if err != nil {
		return fmt.Errorf("failed to get usage stats: %w", err)
	}

	if statsJSON {
		apps := make([]bridge.AppReport, 0, len(stats.Apps))
		for _, app := range stats.Apps {
			apps = append(apps, bridge.NewAppReport(app).WithProjection(usage.Project(app, stats.Now)))
		}
		data, err := bridge.EncodeUsageReport(bridge.NewUsageReport(stats.Now, stats.Start, stats.End, apps))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, string(data))
		return nil
	}

	printStats(stats)
	return nil
}

func statsWindow(now time.Time) (time.Time, time.Time, error) {
	if statsPeriod != "" {
		if statsStart != "" || statsEnd != "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--period cannot be combined with --start/--end")
		}
		tf, err := usage.ParseTimeframe(statsPeriod)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return usage.RangeFor(tf, now)
	}

	start := usage.StartOfDay(now).AddDate(0, 0, -1)
	end := now
	if statsStart != "" {
		t, err := time.Parse(time.RFC3339, statsStart)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		start = t.In(now.Location())
	}
	if statsEnd != "" {
		t, err := time.Parse(time.RFC3339, statsEnd)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t.In(now.Location())
	}
	return start, end, nil
}

func printStats(stats *usage.Stats) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)

	_, _ = cyan.Printf("Usage %s → %s\n\n", stats.Start.Format(time.RFC3339), stats.End.Format(time.RFC3339))

	if stats.NoData() {
		fmt.Println("No usage recorded in this window.")
		return
	}

	fmt.Printf("%-40s %10s %9s %10s %9s\n", "APP", "TODAY", "SESSIONS", "YESTERDAY", "SESSIONS")
	for _, a := range stats.Apps {
		name := a.AppID
		if a.LastForegroundEnteredAt != nil {
			name = "● " + name
		}
		fmt.Printf("%-40s ", name)
		_, _ = green.Printf("%10s", usage.FormatDuration(a.TodayDuration))
		fmt.Printf(" %9d %10s %9d\n", a.TodaySessions, usage.FormatDuration(a.YesterdayDuration), a.YesterdaySessions)
	}
}
