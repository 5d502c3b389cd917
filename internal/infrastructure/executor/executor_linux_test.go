package executor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processGone treats zombies as gone: a reparented child may wait on a
// reaper we do not control.
func processGone(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return true
	}
	stat := string(data)
	i := strings.LastIndexByte(stat, ')')
	if i < 0 || i+2 >= len(stat) {
		return false
	}
	return stat[i+2] == 'Z'
}

func TestTimeoutKillsWholeProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	opts := testOptions()
	opts.Timeout = 300 * time.Millisecond

	result, err := New(opts, "").Execute(context.Background(),
		"sleep 30 & echo $! > "+pidFile+"; wait")
	require.NoError(t, err)
	require.True(t, result.TimedOut)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return processGone(pid) }, 3*time.Second, 50*time.Millisecond)
}

func TestBackgroundChildDoesNotFailStep(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	opts := testOptions()
	opts.KillGrace = 200 * time.Millisecond

	result, err := New(opts, "").Execute(context.Background(),
		"echo hi; sleep 30 & echo $! > "+pidFile+"; exit 0")
	require.NoError(t, err)
	assert.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.False(t, result.TimedOut)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return processGone(pid) }, 3*time.Second, 50*time.Millisecond)
}
