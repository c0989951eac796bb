// Package runner supervises the rendered test binary inside the virtual
// display wrapper. It owns the process group, the render deadline, the
// graceful-then-forceful kill escalation, and the tee of child output to the
// console and the per-test log file.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultScreen is the virtual framebuffer geometry handed to xvfb-run.
const DefaultScreen = "-screen 0 1920x1080x24"

// DefaultGrace is how long a SIGTERM'd process group gets before SIGKILL.
const DefaultGrace = 5 * time.Second

// Options configures one supervised render run.
type Options struct {
	// Binary is the path of the built test binary, relative to Dir.
	Binary string

	// Dir is the working directory for the child process.
	Dir string

	// Env is the complete child environment, including the capture variables.
	Env []string

	// Timeout bounds the render; expiry is an allowed outcome.
	Timeout time.Duration

	// Grace is the SIGTERM-to-SIGKILL window. Zero means DefaultGrace.
	Grace time.Duration

	// LogPath receives a persisted copy of the combined child output.
	LogPath string

	// Console additionally receives the combined output as it streams.
	// Defaults to os.Stdout.
	Console io.Writer

	// Stop, when it fires, ends the render early through the same graceful
	// path as a timeout. Optional.
	Stop <-chan struct{}

	// Screen overrides DefaultScreen.
	Screen string

	// Wrapper overrides the virtual display wrapper command the binary is
	// launched under. Defaults to xvfb-run with the configured screen.
	Wrapper []string

	Logger *zap.Logger
}

// Result captures how the supervised process ended. A timeout or an early
// stop is normalized to exit code 0 because the render loop may run
// indefinitely by design.
type Result struct {
	ExitCode int
	TimedOut bool
	Stopped  bool
	Duration time.Duration
}

// Run launches the binary under xvfb-run in its own process group and waits
// for it with the configured deadline.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Screen == "" {
		opts.Screen = DefaultScreen
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logFile, err := os.Create(opts.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", opts.LogPath, err)
	}
	defer logFile.Close()

	wrapper := opts.Wrapper
	if len(wrapper) == 0 {
		wrapper = []string{"xvfb-run", "-a", "-s", opts.Screen}
	}
	argv := append(append([]string{}, wrapper...), opts.Binary)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	setupProcessGroup(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var tee errgroup.Group
	tee.Go(func() error {
		_, copyErr := io.Copy(io.MultiWriter(opts.Console, logFile), pr)
		return copyErr
	})

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		_ = tee.Wait()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s is required to capture headless screenshots: %w", argv[0], err)
		}
		return nil, fmt.Errorf("failed to start render process: %w", err)
	}
	logger.Debug("render process started",
		zap.String("binary", opts.Binary),
		zap.Int("pid", cmd.Process.Pid),
		zap.Duration("timeout", opts.Timeout))

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	result := &Result{}
	var runErr error
	select {
	case runErr = <-waitErr:
	case <-deadline.C:
		result.TimedOut = true
		logger.Info("render deadline reached, terminating process group",
			zap.Duration("timeout", opts.Timeout))
		runErr = escalate(cmd, waitErr, opts.Grace, logger)
	case <-opts.Stop:
		result.Stopped = true
		logger.Info("render stopped early, terminating process group")
		runErr = escalate(cmd, waitErr, opts.Grace, logger)
	case <-ctx.Done():
		_ = escalate(cmd, waitErr, opts.Grace, logger)
		pw.Close()
		_ = tee.Wait()
		return nil, ctx.Err()
	}

	pw.Close()
	if err := tee.Wait(); err != nil {
		logger.Warn("output tee ended with error", zap.Error(err))
	}
	result.Duration = time.Since(start)

	if result.TimedOut || result.Stopped {
		// The rendering loop may run forever; a kill on the deadline is an
		// allowed outcome, not a failure.
		result.ExitCode = 0
		return result, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("render process failed: %w", runErr)
	}
	result.ExitCode = 0
	return result, nil
}

// escalate sends a graceful termination to the whole process group, waits
// out the grace period, then force-kills the group. Always reaps the child.
func escalate(cmd *exec.Cmd, waitErr <-chan error, grace time.Duration, logger *zap.Logger) error {
	if err := terminateProcessGroup(cmd); err != nil {
		logger.Debug("graceful termination failed", zap.Error(err))
	}
	select {
	case err := <-waitErr:
		return err
	case <-time.After(grace):
		logger.Warn("process group survived grace period, force-killing",
			zap.Duration("grace", grace))
		if err := killProcessGroup(cmd); err != nil {
			logger.Debug("force kill failed", zap.Error(err))
		}
		return <-waitErr
	}
}
