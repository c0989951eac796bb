//go:build windows

package runner

import "os/exec"

// The capture pipeline depends on xvfb-run, so Windows support is limited to
// killing the direct child. Process-group signaling is a Unix concept.

func setupProcessGroup(cmd *exec.Cmd) {}

func terminateProcessGroup(cmd *exec.Cmd) error {
	return killProcessGroup(cmd)
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
