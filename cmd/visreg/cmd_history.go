package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"visreg/internal/history"
	"visreg/internal/report"
)

var (
	historyLimit     int
	historyArtifacts string
)

var historyCmd = &cobra.Command{
	Use:   "history <test>",
	Short: "Show recorded runs for a test, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show")
	historyCmd.Flags().StringVar(&historyArtifacts, "artifacts", "artifacts", "artifact root holding the history database")
}

func showHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(filepath.Join(historyArtifacts, "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(args[0], historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("no recorded runs for %s\n", args[0])
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %s  %s=%s exit=%d",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			report.Verdict(rec.Passed),
			rec.Metric, report.Value(rec.Value),
			rec.ExitCode)
		if rec.Threshold != nil {
			line += fmt.Sprintf(" threshold=%g/%s", *rec.Threshold, rec.Direction)
		}
		if rec.GoldenUpdate {
			line += " (golden updated)"
		}
		if rec.TimedOut {
			line += " (timed out)"
		}
		fmt.Println(line)
	}
	return nil
}
