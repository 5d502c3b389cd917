package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

func testOptions() Options {
	return Options{Shell: "/bin/sh", Timeout: 10 * time.Second, KillGrace: time.Second}
}

func commands(t *testing.T, cmds ...string) domain.Automation {
	t.Helper()
	list := make([]domain.AutomationCommand, 0, len(cmds))
	for _, c := range cmds {
		list = append(list, domain.AutomationCommand{Command: c})
	}
	automation, err := domain.NewCommandsAutomation(list)
	require.NoError(t, err)
	return automation
}

func script(t *testing.T, body string) domain.Automation {
	t.Helper()
	automation, err := domain.NewScriptAutomation(body)
	require.NoError(t, err)
	return automation
}

func TestExecuteCapturesOutput(t *testing.T) {
	exec := New(testOptions(), "run-1")

	result, err := exec.Execute(context.Background(), "echo hello; echo oops 1>&2")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, "oops\n", result.Stderr)
	assert.Contains(t, result.Output, "hello")
	assert.Contains(t, result.Output, "oops")
	assert.Positive(t, result.Duration)
}

func TestExecuteNonZeroExit(t *testing.T) {
	result, err := New(testOptions(), "").Execute(context.Background(), "exit 3")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
	assert.NotEmpty(t, result.Error)
}

func TestExecuteMissingShellIsFailedResult(t *testing.T) {
	opts := testOptions()
	opts.Shell = "/nonexistent/nova-shell"

	result, err := New(opts, "").Execute(context.Background(), "echo hi")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Error, "not found")
}

func TestExecuteTimeout(t *testing.T) {
	opts := testOptions()
	opts.Timeout = 200 * time.Millisecond

	start := time.Now()
	result, err := New(opts, "").Execute(context.Background(), "sleep 5")
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecuteTruncatesCapturedOutput(t *testing.T) {
	opts := testOptions()
	opts.MaxOutputBytes = 10

	events := make(chan domain.ExecutionEvent, 64)
	results, err := New(opts, "").ExecuteAutomation(context.Background(),
		commands(t, "printf 'aaaaaaaaaaaaaaaaaaaa'"), events)
	close(events)
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.True(t, result.Truncated)
	assert.Equal(t, "aaaaaaaaaa"+truncatedMarker, result.Stdout)

	var streamed strings.Builder
	for ev := range events {
		if ev.Kind == domain.EventOutput {
			streamed.WriteString(ev.Output.Chunk)
		}
	}
	assert.Equal(t, strings.Repeat("a", 20), streamed.String())
}

func TestExecuteAutomationContinuesAfterFailure(t *testing.T) {
	results, err := New(testOptions(), "").ExecuteAutomation(context.Background(),
		commands(t, "echo one", "false", "echo three"), nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	for i, r := range results {
		assert.Equal(t, i, r.Step)
	}
	assert.Equal(t, "three\n", results[2].Stdout)
}

func TestExecuteAutomationScriptStatements(t *testing.T) {
	results, err := New(testOptions(), "").ExecuteAutomation(context.Background(),
		script(t, "echo a\necho b; echo c\n# done\n"), nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c\n", results[2].Stdout)
}

func TestExecuteAutomationTracksDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	want, err := filepath.EvalSymlinks(filepath.Join(root, "sub"))
	require.NoError(t, err)

	opts := testOptions()
	opts.WorkingDir = root
	exec := New(opts, "")

	results, err := exec.ExecuteAutomation(context.Background(), script(t, "cd sub\npwd -P\ncd missing\n"), nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Equal(t, want+"\n", results[1].Stdout)
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "cd:")
	assert.Equal(t, filepath.Join(root, "sub"), exec.WorkingDir())
}

func TestExecuteAutomationTracksExports(t *testing.T) {
	results, err := New(testOptions(), "").ExecuteAutomation(context.Background(),
		commands(t, "export GREETING=hi", "NAME=nova", `echo "$GREETING $NAME"`), nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.Equal(t, "hi nova\n", results[2].Stdout)
}

func TestExecuteAutomationEvents(t *testing.T) {
	events := make(chan domain.ExecutionEvent, 64)
	results, err := New(testOptions(), "run-42").ExecuteAutomation(context.Background(),
		commands(t, "echo hello", "echo world"), events)
	close(events)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var kinds []domain.EventKind
	var output strings.Builder
	for ev := range events {
		assert.Equal(t, "run-42", ev.RunID)
		assert.Equal(t, 2, ev.Total)
		kinds = append(kinds, ev.Kind)
		if ev.Kind == domain.EventOutput {
			output.WriteString(ev.Output.Chunk)
		}
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, domain.EventStepStarted, kinds[0])
	assert.Equal(t, domain.EventStepResult, kinds[len(kinds)-1])
	assert.Equal(t, "hello\nworld\n", output.String())

	var resultEvents int
	for _, k := range kinds {
		if k == domain.EventStepResult {
			resultEvents++
		}
	}
	assert.Equal(t, 2, resultEvents)
}

func TestExecuteAutomationCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := New(testOptions(), "").ExecuteAutomation(ctx, commands(t, "echo a", "echo b"), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Skipped)
		assert.False(t, r.Success)
	}
}

func TestExecuteAutomationCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	results, err := New(testOptions(), "").ExecuteAutomation(ctx, commands(t, "sleep 5", "echo later"), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)

	assert.False(t, results[0].Success)
	assert.False(t, results[0].Skipped)
	assert.True(t, strings.HasPrefix(results[0].Error, "cancelled"))
	assert.True(t, results[1].Skipped)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecuteAutomationEmpty(t *testing.T) {
	_, err := New(testOptions(), "").ExecuteAutomation(context.Background(), domain.Automation{}, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyAutomation)
}

func TestStepsTimeoutOverride(t *testing.T) {
	automation, err := domain.NewCommandsAutomation([]domain.AutomationCommand{
		{Command: "make build", Description: "build"},
		{Command: "make test", TimeoutSeconds: 120},
	})
	require.NoError(t, err)

	steps, err := Steps(automation, time.Minute)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, time.Minute, steps[0].Timeout)
	assert.Equal(t, "build", steps[0].Description)
	assert.Equal(t, 2*time.Minute, steps[1].Timeout)
}

func TestResolveShell(t *testing.T) {
	path, args, err := ResolveShell("/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", path)
	assert.Equal(t, []string{"-c"}, args)

	_, _, err = ResolveShell("/nonexistent/nova-shell")
	assert.Error(t, err)
}

func TestFactoryBuildsIndependentExecutors(t *testing.T) {
	factory := NewFactory(testOptions())
	first := factory.New("a").(*LocalExecutor)
	second := factory.New("b").(*LocalExecutor)

	_, err := first.ExecuteAutomation(context.Background(), commands(t, "export ONLY_FIRST=1"), nil)
	require.NoError(t, err)

	assert.Equal(t, "1", first.lookup("ONLY_FIRST"))
	assert.Empty(t, second.lookup("ONLY_FIRST"))
}

func TestAvailableShellsSearchesPath(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"pwsh", "sh", "notashell"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0o755))
	}
	t.Setenv("PATH", dir)

	assert.Equal(t, []string{"pwsh", "sh"}, AvailableShells())
}
