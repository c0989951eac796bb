package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"visreg/internal/config"
	"visreg/internal/harness"
	"visreg/internal/history"
	"visreg/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run <test-id-or-path> [artifact-root]",
	Short: "Build, render, and compare a single visual test",
	Long: `Builds the test binary, runs it under xvfb with the screenshot layer
capturing frames into the artifact directory, then compares the first
captured frame against the test's golden.ppm.

A render that outlives its timeout is terminated and counts as success,
because render loops may run indefinitely by design. Set UPDATE_GOLDEN=1 to
overwrite the golden image with the captured frame instead of comparing.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runVisualTest,
}

func runVisualTest(cmd *cobra.Command, args []string) error {
	testID := args[0]
	artifactRoot := "artifacts"
	if len(args) > 1 {
		artifactRoot = args[1]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHarness(artifactRoot)
	if h.History != nil {
		defer h.History.Close()
	}

	testDir, err := h.FindTestDir(testID)
	if err != nil {
		return exitErr(1, err)
	}
	cfg, err := config.Resolve(filepath.Join(testDir, harness.CompareCfgName))
	if err != nil {
		return exitErr(1, err)
	}

	outcome, err := h.Run(ctx, cfg, testID, artifactRoot)
	if err != nil {
		return exitErr(outcome.ExitCode, err)
	}
	if outcome.Compared {
		fmt.Println(report.Verdict(outcome.Passed))
	}
	if outcome.ExitCode != 0 {
		return exitErr(outcome.ExitCode,
			fmt.Errorf("render process exited with code %d", outcome.ExitCode))
	}
	return nil
}

// newHarness assembles a harness from the global flags, with a best-effort
// history store under the artifact root.
func newHarness(artifactRoot string) *harness.Harness {
	h := &harness.Harness{
		RepoRoot:  repoRoot,
		TestsRoot: testsRoot,
		BuildTool: buildTool,
		EarlyStop: earlyStop,
		Logger:    logger,
	}
	store, err := history.Open(filepath.Join(artifactRoot, "history.db"))
	if err != nil {
		logger.Warn("run history unavailable", zap.Error(err))
	} else {
		h.History = store
	}
	return h
}
