// visreg builds a single graphical test, renders it inside a virtual
// display with the Vulkan screenshot layer enabled, and compares the
// captured frame against the test's golden image.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	repoRoot  string
	testsRoot string
	buildTool string
	earlyStop bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "visreg",
	Short: "visreg - visual regression harness for rendered output",
	Long: `visreg drives a visual test end to end: it builds the test binary,
runs it under xvfb with the Vulkan screenshot layer capturing frames, then
compares the captured frame against the test's stored golden image using a
configurable similarity metric.

Configuration comes from environment variables (TEST_TIMEOUT, UPDATE_GOLDEN,
COMPARISON_METRIC, COMPARISON_THRESHOLD, COMPARISON_DIRECTION,
COMPARISON_FRAMES, FRAME_LIMIT), overridden per test by a compare.cfg file
in the test directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// exitCodeError carries a specific process exit status up to main. The
// harness distinguishes build failures (build tool's own code), missing
// artifacts (1), and render exit codes.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func exitErr(code int, err error) error {
	if code == 0 {
		code = 1
	}
	return &exitCodeError{code: code, err: err}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "root", ".", "renderer repository root (tests build from here)")
	rootCmd.PersistentFlags().StringVar(&testsRoot, "tests-root", "test/visual", "directory bare test identifiers resolve under, relative to --root")
	rootCmd.PersistentFlags().StringVar(&buildTool, "build-tool", "odin", "build tool invoked for test binaries")
	rootCmd.PersistentFlags().BoolVar(&earlyStop, "early-stop", false, "stop the render once all expected frames are captured")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(suiteCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	start := time.Now()
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if logger != nil {
		logger.Debug("command failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		os.Exit(ec.code)
	}
	os.Exit(1)
}
