package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"visreg/internal/config"
	"visreg/internal/harness"
	"visreg/internal/report"
	"visreg/internal/suite"
)

var suiteCmd = &cobra.Command{
	Use:   "suite <suite.yaml> [artifact-root]",
	Short: "Run a YAML-defined battery of visual tests sequentially",
	Long: `Runs every test named in the suite file in order. Each entry resolves
its configuration the same way "run" does (environment, then the test's
compare.cfg) and may override metric, threshold, direction, timeout, frames,
and frame limit inline. With fail_fast set in the suite, the first failure
stops the battery.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSuite,
}

func runSuite(cmd *cobra.Command, args []string) error {
	suitePath := args[0]
	artifactRoot := "artifacts"
	if len(args) > 1 {
		artifactRoot = args[1]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	battery, err := suite.Load(suitePath)
	if err != nil {
		return exitErr(1, err)
	}

	h := newHarness(artifactRoot)
	if h.History != nil {
		defer h.History.Close()
	}

	results := battery.Run(ctx, func(ctx context.Context, entry suite.Entry) suite.Result {
		return runSuiteEntry(ctx, h, entry, artifactRoot)
	})

	fmt.Print(report.SuiteSummary(results))

	failed := 0
	for _, res := range results {
		if !res.Passed {
			failed++
		}
	}
	if failed > 0 {
		return exitErr(1, fmt.Errorf("%d of %d suite tests failed", failed, len(results)))
	}
	return nil
}

func runSuiteEntry(ctx context.Context, h *harness.Harness, entry suite.Entry, artifactRoot string) suite.Result {
	res := suite.Result{Name: entry.Name}

	testDir, err := h.FindTestDir(entry.Name)
	if err != nil {
		res.Error = err.Error()
		res.ExitCode = 1
		return res
	}
	cfg, err := config.Resolve(filepath.Join(testDir, harness.CompareCfgName))
	if err != nil {
		res.Error = err.Error()
		res.ExitCode = 1
		return res
	}
	cfg = entry.Overlay(cfg)
	if err := cfg.Validate(); err != nil {
		res.Error = err.Error()
		res.ExitCode = 1
		return res
	}

	outcome, err := h.Run(ctx, cfg, entry.Name, artifactRoot)
	res.ExitCode = outcome.ExitCode
	res.Value = outcome.Value
	res.DurationMs = outcome.Duration.Milliseconds()
	if err != nil {
		res.Error = err.Error()
		logger.Warn("suite test failed",
			zap.String("test", entry.Name),
			zap.Error(err))
		return res
	}
	res.Passed = outcome.ExitCode == 0
	return res
}
