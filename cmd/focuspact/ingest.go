package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/focuspact/focuspact/internal/bridge"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Append event batches to the journal",
	Long:  `Validate and append one or more event batch files (schema version 1) to the journal. Use - to read a batch from stdin.`,
	Example: `  focuspact ingest batch-0001.json batch-0002.json
  adb shell cat /sdcard/focuspact/batch.json | focuspact ingest -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openCommandApp()
	if err != nil {
		return err
	}
	defer a.Close()

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	failed := 0
	for _, name := range args {
		data, err := readBatch(name)
		if err != nil {
			_, _ = red.Fprintf(os.Stderr, "✗ %s: %v\n", name, err)
			failed++
			continue
		}

		n, err := bridge.IngestBytes(context.Background(), a.journal, "cli", data)
		if err != nil {
			_, _ = red.Fprintf(os.Stderr, "✗ %s: %v\n", name, err)
			failed++
			continue
		}
		_, _ = green.Printf("✓ %s: %d events\n", name, n)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d batches failed", failed, len(args))
	}
	return nil
}

func readBatch(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}
