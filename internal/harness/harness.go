// Package harness drives one visual test end to end: locate the test
// directory, build its binary, render it under the virtual display with the
// screenshot layer enabled, pick up the captured frame, and either refresh
// the golden image or compare against it.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"visreg/internal/capture"
	"visreg/internal/config"
	"visreg/internal/history"
	"visreg/internal/imaging"
	"visreg/internal/metric"
	"visreg/internal/runner"
)

// DefaultTestsRoot is where bare test identifiers are resolved, relative to
// the repository root.
const DefaultTestsRoot = "test/visual"

// DefaultBuildTool builds the test binaries.
const DefaultBuildTool = "odin"

// GoldenName is the reference image filename inside each test directory.
const GoldenName = "golden.ppm"

// CompareCfgName is the per-test configuration filename.
const CompareCfgName = "compare.cfg"

// Harness orchestrates visual test runs. The zero value is not usable; fill
// RepoRoot (or leave "." for the current directory) and call Run.
type Harness struct {
	// RepoRoot is the renderer repository the tests live in and build from.
	RepoRoot string

	// TestsRoot resolves bare test identifiers; relative to RepoRoot.
	TestsRoot string

	// BuildTool overrides DefaultBuildTool.
	BuildTool string

	// Screen overrides the virtual framebuffer geometry.
	Screen string

	// Wrapper overrides the virtual display wrapper command; tests use
	// this to run binaries without a display server.
	Wrapper []string

	// Console receives build and render output plus result lines.
	Console io.Writer

	// History, when set, records every completed run.
	History *history.Store

	// EarlyStop ends the render as soon as the expected frame count has
	// been captured instead of waiting out the full deadline.
	EarlyStop bool

	Logger *zap.Logger
}

// Outcome is the result of one harness run. ExitCode is the process exit
// status the caller should propagate; a non-nil error from Run carries the
// human-readable failure.
type Outcome struct {
	Test         string
	ExitCode     int
	Metric       string
	Value        float64
	Compared     bool
	Passed       bool
	GoldenUpdate bool
	TimedOut     bool
	ArtifactDir  string
	Duration     time.Duration
}

// Run executes a single test under the given configuration.
func (h *Harness) Run(ctx context.Context, cfg config.Run, testID, artifactRoot string) (*Outcome, error) {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	console := h.Console
	if console == nil {
		console = os.Stdout
	}
	repoRoot := h.RepoRoot
	if repoRoot == "" {
		repoRoot = "."
	}
	if artifactRoot == "" {
		artifactRoot = "artifacts"
	}

	testDir, err := h.FindTestDir(testID)
	if err != nil {
		return &Outcome{ExitCode: 1}, err
	}
	testName := filepath.Base(testDir)
	outcome := &Outcome{Test: testName, Metric: cfg.Metric}
	start := time.Now()
	defer func() { outcome.Duration = time.Since(start) }()

	binaryName := "visual_" + testName
	buildArgs, err := h.build(ctx, cfg, repoRoot, testDir, binaryName, console, logger, outcome)
	if err != nil {
		return outcome, err
	}

	logDir := filepath.Join(artifactRoot, "logs")
	outDir := filepath.Join(artifactRoot, testName)
	for _, dir := range []string{logDir, outDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			outcome.ExitCode = 1
			return outcome, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	outcome.ArtifactDir = outDir

	absOutDir, err := filepath.Abs(outDir)
	if err != nil {
		outcome.ExitCode = 1
		return outcome, fmt.Errorf("failed to resolve artifact directory: %w", err)
	}
	env := runner.CaptureEnv(os.Environ(), cfg.Frames, absOutDir)

	var stop <-chan struct{}
	if h.EarlyStop {
		watcher, werr := capture.NewFrameWatcher(outDir, cfg.Frames, logger)
		if werr != nil {
			logger.Warn("frame watcher unavailable, render will run to its deadline", zap.Error(werr))
		} else {
			watcher.Start()
			defer watcher.Stop()
			stop = watcher.Done()
		}
	}

	fmt.Fprintf(console, "Running visual test: %s\n", testName)
	runOpts := runner.Options{
		Binary:  "./bin/" + binaryName,
		Dir:     repoRoot,
		Env:     env,
		Timeout: cfg.Timeout(),
		LogPath: filepath.Join(logDir, testName+".log"),
		Console: console,
		Stop:    stop,
		Screen:  h.Screen,
		Wrapper: h.Wrapper,
		Logger:  logger,
	}
	result, err := runner.Run(ctx, runOpts)
	if err != nil {
		outcome.ExitCode = 1
		return outcome, err
	}
	outcome.TimedOut = result.TimedOut || result.Stopped
	if result.TimedOut {
		fmt.Fprintln(console, "Render timed out (allowed).")
	}
	if result.Stopped {
		fmt.Fprintf(console, "All %d frames captured, render stopped early.\n", cfg.Frames)
	}

	if result.ExitCode != 0 {
		crashPath := filepath.Join(logDir, testName+".crash.log")
		logger.Warn("render exited non-zero, capturing backtrace",
			zap.Int("exit_code", result.ExitCode),
			zap.String("crash_log", crashPath))
		if btErr := runner.CaptureBacktrace(ctx, runOpts, crashPath); btErr != nil {
			logger.Warn("backtrace capture failed", zap.Error(btErr))
		}
	}

	frame, err := capture.FirstFrame(outDir)
	if err != nil {
		outcome.ExitCode = 1
		return outcome, fmt.Errorf("failed to scan %s for screenshots: %w", outDir, err)
	}
	if frame == "" {
		outcome.ExitCode = failCode(result.ExitCode)
		return outcome, fmt.Errorf(
			"no screenshot produced for %s (%s=%d, %s=%s, build: %s %s)",
			testName, runner.EnvScreenshotFrames, cfg.Frames,
			runner.EnvScreenshotDir, absOutDir,
			h.buildTool(), strings.Join(buildArgs, " "))
	}

	goldenPath := filepath.Join(testDir, GoldenName)
	if cfg.UpdateGolden {
		if err := copyFile(frame, goldenPath); err != nil {
			outcome.ExitCode = 1
			return outcome, fmt.Errorf("failed to update golden: %w", err)
		}
		outcome.GoldenUpdate = true
		outcome.Passed = true
		outcome.ExitCode = 0
		fmt.Fprintf(console, "Updated golden for %s at %s\n", testName, goldenPath)
		h.record(cfg, outcome, time.Since(start), logger)
		return outcome, nil
	}

	if _, err := os.Stat(goldenPath); err != nil {
		outcome.ExitCode = 1
		return outcome, fmt.Errorf(
			"golden image missing for %s (%s), set %s=1 to create it",
			testName, goldenPath, config.EnvUpdateGolden)
	}

	value, compared, err := h.compare(goldenPath, frame, cfg, testName, console)
	outcome.Value = value
	outcome.Compared = compared
	if err != nil {
		outcome.ExitCode = failCode(result.ExitCode)
		h.record(cfg, outcome, time.Since(start), logger)
		return outcome, err
	}
	outcome.Passed = true
	outcome.ExitCode = result.ExitCode
	h.record(cfg, outcome, time.Since(start), logger)
	return outcome, nil
}

// FindTestDir accepts a literal path or a bare identifier under TestsRoot.
func (h *Harness) FindTestDir(testID string) (string, error) {
	repoRoot := h.RepoRoot
	if repoRoot == "" {
		repoRoot = "."
	}
	candidates := []string{
		testID,
		filepath.Join(repoRoot, testID),
		filepath.Join(repoRoot, h.testsRoot(), testID),
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return filepath.Clean(candidate), nil
		}
	}
	return "", fmt.Errorf("test directory not found: %s", testID)
}

func (h *Harness) build(ctx context.Context, cfg config.Run, repoRoot, testDir, binaryName string,
	console io.Writer, logger *zap.Logger, outcome *Outcome) ([]string, error) {

	relDir, err := filepath.Rel(repoRoot, testDir)
	if err != nil {
		relDir = testDir
	}
	args := []string{"build", relDir, "-out:bin/" + binaryName}
	if cfg.FrameLimit > 0 {
		args = append(args, "-define:FRAME_LIMIT="+strconv.Itoa(cfg.FrameLimit))
	}

	fmt.Fprintf(console, "Building %s\n", relDir)
	logger.Debug("building test binary",
		zap.String("tool", h.buildTool()),
		zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, h.buildTool(), args...)
	cmd.Dir = repoRoot
	cmd.Stdout = console
	cmd.Stderr = console
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return args, fmt.Errorf("build failed with exit code %d", exitErr.ExitCode())
		}
		outcome.ExitCode = 1
		return args, fmt.Errorf("failed to run build tool %s: %w", h.buildTool(), err)
	}
	return args, nil
}

func (h *Harness) compare(goldenPath, latestPath string, cfg config.Run, testName string, console io.Writer) (float64, bool, error) {
	golden, err := imaging.DecodeFile(goldenPath)
	if err != nil {
		return 0, false, err
	}
	latest, err := imaging.DecodeFile(latestPath)
	if err != nil {
		return 0, false, err
	}

	value, err := metric.Compute(cfg.Metric, golden, latest)
	if err != nil {
		return 0, false, err
	}

	line := fmt.Sprintf("%s for %s: %.6f", cfg.Metric, testName, value)
	if cfg.Threshold != nil {
		line += fmt.Sprintf(" (threshold %g, direction %s)", *cfg.Threshold, cfg.Direction)
	}
	fmt.Fprintln(console, line)

	if err := metric.Verdict(cfg.Metric, value, cfg.Threshold, cfg.Direction); err != nil {
		return value, true, err
	}
	return value, true, nil
}

// record appends the outcome to the history store, best-effort.
func (h *Harness) record(cfg config.Run, outcome *Outcome, elapsed time.Duration, logger *zap.Logger) {
	if h.History == nil {
		return
	}
	_, err := h.History.Append(history.Record{
		Test:         outcome.Test,
		Metric:       cfg.Metric,
		Value:        outcome.Value,
		Threshold:    cfg.Threshold,
		Direction:    cfg.Direction,
		Passed:       outcome.Passed,
		ExitCode:     outcome.ExitCode,
		TimedOut:     outcome.TimedOut,
		GoldenUpdate: outcome.GoldenUpdate,
		DurationMs:   elapsed.Milliseconds(),
		ArtifactDir:  outcome.ArtifactDir,
	})
	if err != nil {
		logger.Warn("failed to record run history", zap.Error(err))
	}
}

func (h *Harness) testsRoot() string {
	if h.TestsRoot != "" {
		return h.TestsRoot
	}
	return DefaultTestsRoot
}

func (h *Harness) buildTool() string {
	if h.BuildTool != "" {
		return h.BuildTool
	}
	return DefaultBuildTool
}

// failCode keeps a non-zero render exit code, else reports 1.
func failCode(renderExit int) int {
	if renderExit != 0 {
		return renderExit
	}
	return 1
}
