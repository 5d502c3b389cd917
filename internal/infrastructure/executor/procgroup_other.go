//go:build !darwin && !linux

package executor

import (
	"os/exec"
	"time"
)

// setupProcessGroup only bounds pipe draining here; cancellation falls back
// to killing the direct child.
func setupProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	cmd.WaitDelay = grace
}

func killProcessGroup(*exec.Cmd) {}

func isResourceExhausted(error) bool {
	return false
}
