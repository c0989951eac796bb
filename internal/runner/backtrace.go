package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// backtraceTimeout bounds the diagnostic re-run; a crash usually reproduces
// well before the render deadline.
const backtraceTimeout = 30 * time.Second

// CaptureBacktrace re-runs a crashed test binary once under gdb in batch
// mode and writes the thread backtraces to crashPath. Diagnostic only: the
// caller's exit code is never affected, and any failure here is returned for
// logging rather than escalation.
func CaptureBacktrace(ctx context.Context, opts Options, crashPath string) error {
	if opts.Screen == "" {
		opts.Screen = DefaultScreen
	}

	crashFile, err := os.Create(crashPath)
	if err != nil {
		return fmt.Errorf("failed to create crash log %s: %w", crashPath, err)
	}
	defer crashFile.Close()

	btCtx, cancel := context.WithTimeout(ctx, backtraceTimeout)
	defer cancel()

	wrapper := opts.Wrapper
	if len(wrapper) == 0 {
		wrapper = []string{"xvfb-run", "-a", "-s", opts.Screen}
	}
	argv := append(append([]string{}, wrapper...),
		"gdb", "-batch",
		"-ex", "run",
		"-ex", "thread apply all bt",
		"--args", opts.Binary)

	cmd := exec.CommandContext(btCtx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = crashFile
	cmd.Stderr = crashFile
	setupProcessGroup(cmd)

	if err := cmd.Run(); err != nil {
		// gdb exits non-zero when the inferior crashed; the backtrace is
		// still on disk, so only a failure to execute gdb matters.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("failed to run gdb: %w", err)
	}
	return nil
}
