// Package executor runs validated commands and automations on the host shell.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/pkg/filesystem"
	"github.com/MustafaMerchant21/Nova/internal/pkg/logger"
	"github.com/MustafaMerchant21/Nova/internal/pkg/shellparse"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// ErrResourceExhausted means the host refused to start another process.
var ErrResourceExhausted = errors.New("host resources exhausted")

// Options configure an executor.
type Options struct {
	Shell          string
	WorkingDir     string
	Timeout        time.Duration
	KillGrace      time.Duration
	MaxOutputBytes int
	Logger         ports.Logger
}

// OptionsFromConfig reads the execution section.
func OptionsFromConfig(cfg *domain.Config, log ports.Logger) Options {
	return Options{
		Shell:          cfg.GetExecutionShell(),
		WorkingDir:     cfg.Execution.WorkingDir,
		Timeout:        cfg.GetStepTimeout(),
		KillGrace:      cfg.GetKillGrace(),
		MaxOutputBytes: cfg.GetMaxOutputBytes(),
		Logger:         log,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = domain.DefaultStepTimeout
	}
	if o.KillGrace <= 0 {
		o.KillGrace = domain.DefaultKillGrace
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = domain.DefaultMaxOutputBytes
	}
	if o.Logger == nil {
		o.Logger = logger.Nop{}
	}
	return o
}

// Factory builds one executor per request.
type Factory struct {
	opts Options
}

// NewFactory implements ports.ExecutorFactory.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts.withDefaults()}
}

// New returns a fresh executor tagged with runID.
func (f *Factory) New(runID string) ports.CommandExecutor {
	return New(f.opts, runID)
}

// LocalExecutor runs steps through the host shell. Working directory and
// exported variables carry over between the steps of one executor, so it is
// not meant to be shared between requests.
type LocalExecutor struct {
	opts  Options
	runID string
	dir   string
	env   map[string]string
	order []string
}

// New builds an executor. The shell defaults to $SHELL, then /bin/sh.
func New(opts Options, runID string) *LocalExecutor {
	opts = opts.withDefaults()
	return &LocalExecutor{
		opts:  opts,
		runID: runID,
		dir:   opts.WorkingDir,
		env:   map[string]string{},
	}
}

// ResolveShell returns the shell binary and the arguments that precede the
// command text.
func ResolveShell(configured string) (string, []string, error) {
	shell := strings.TrimSpace(configured)
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	path, err := exec.LookPath(shell)
	if err != nil {
		return "", nil, fmt.Errorf("shell %q not found: %w", shell, err)
	}
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(path)), ".exe")
	switch base {
	case "pwsh", "powershell":
		return path, []string{"-NoProfile", "-NonInteractive", "-Command"}, nil
	case "cmd":
		return path, []string{"/C"}, nil
	default:
		return path, []string{"-c"}, nil
	}
}

// Steps turns an automation into executable units. Scripts split on logical
// statements; command lists map one to one.
func Steps(automation domain.Automation, timeout time.Duration) ([]domain.Step, error) {
	switch automation.Kind() {
	case domain.AutomationScript:
		statements, _ := shellparse.Split(automation.Script())
		steps := make([]domain.Step, 0, len(statements))
		for _, stmt := range statements {
			steps = append(steps, domain.Step{
				Index:   len(steps),
				Command: stmt.Text,
				Line:    stmt.Line,
				Timeout: timeout,
			})
		}
		if len(steps) == 0 {
			return nil, domain.ErrEmptyAutomation
		}
		return steps, nil
	case domain.AutomationCommands:
		commands := automation.Commands()
		steps := make([]domain.Step, 0, len(commands))
		for i, cmd := range commands {
			step := domain.Step{
				Index:       i,
				Command:     cmd.Command,
				Description: cmd.Description,
				Timeout:     timeout,
			}
			if cmd.TimeoutSeconds > 0 {
				step.Timeout = time.Duration(cmd.TimeoutSeconds) * time.Second
			}
			steps = append(steps, step)
		}
		return steps, nil
	default:
		return nil, domain.ErrEmptyAutomation
	}
}

// Execute implements ports.CommandExecutor. Failures of the command itself
// land in the result; the error is only set when the host is out of resources.
func (e *LocalExecutor) Execute(ctx context.Context, command string) (domain.ExecutionResult, error) {
	step := domain.Step{Command: command, Timeout: e.opts.Timeout}
	return e.run(ctx, step, 1, nil)
}

// ExecuteAutomation implements ports.CommandExecutor. Steps run in order and
// a failing step does not stop the ones after it. Once ctx is done the
// remaining steps are reported as skipped and ctx.Err() is returned.
func (e *LocalExecutor) ExecuteAutomation(ctx context.Context, automation domain.Automation, events chan<- domain.ExecutionEvent) ([]domain.ExecutionResult, error) {
	steps, err := Steps(automation, e.opts.Timeout)
	if err != nil {
		return nil, err
	}

	e.opts.Logger.Debug("automation started", map[string]interface{}{
		"run_id": e.runID,
		"kind":   automation.Kind().String(),
		"steps":  len(steps),
	})

	results := make([]domain.ExecutionResult, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			results = append(results, e.skip(ctx, step, len(steps), err, events))
			continue
		}
		result, err := e.run(ctx, step, len(steps), events)
		if err != nil {
			results = append(results, result)
			for _, rest := range steps[i+1:] {
				results = append(results, e.skip(ctx, rest, len(steps), err, events))
			}
			return results, err
		}
		results = append(results, result)
	}
	return results, ctx.Err()
}

func (e *LocalExecutor) skip(ctx context.Context, step domain.Step, total int, cause error, events chan<- domain.ExecutionEvent) domain.ExecutionResult {
	result := domain.ExecutionResult{
		Step:      step.Index,
		Command:   step.Command,
		ExitCode:  -1,
		Skipped:   true,
		Error:     "skipped: " + cause.Error(),
		StartedAt: time.Now(),
	}
	e.emit(ctx, events, domain.ExecutionEvent{Kind: domain.EventStepResult, Step: step.Index, Total: total, Result: &result})
	return result
}

func (e *LocalExecutor) run(ctx context.Context, step domain.Step, total int, events chan<- domain.ExecutionEvent) (domain.ExecutionResult, error) {
	e.emit(ctx, events, domain.ExecutionEvent{Kind: domain.EventStepStarted, Step: step.Index, Total: total})

	result := domain.ExecutionResult{
		Step:      step.Index,
		Command:   step.Command,
		StartedAt: time.Now(),
	}
	finish := func() {
		result.Duration = time.Since(result.StartedAt)
		e.emit(ctx, events, domain.ExecutionEvent{Kind: domain.EventStepResult, Step: step.Index, Total: total, Result: &result})
		e.opts.Logger.Debug("step finished", map[string]interface{}{
			"run_id":    e.runID,
			"step":      step.Index,
			"exit_code": result.ExitCode,
			"success":   result.Success,
			"timed_out": result.TimedOut,
		})
	}

	if handled := e.applyBuiltin(step.Command, &result); handled {
		finish()
		return result, nil
	}

	shell, args, err := ResolveShell(e.opts.Shell)
	if err != nil {
		result.ExitCode = -1
		result.Error = err.Error()
		finish()
		return result, nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, shell, append(args, step.Command)...)
	cmd.Dir = e.dir
	cmd.Env = e.environ()
	out := newCapture(e.opts.MaxOutputBytes, func(stream domain.OutputStream, chunk string) {
		e.emit(ctx, events, domain.ExecutionEvent{
			Kind:  domain.EventOutput,
			Step:  step.Index,
			Total: total,
			Output: &domain.ExecutionOutput{
				Step:    step.Index,
				Command: step.Command,
				Stream:  stream,
				Chunk:   chunk,
			},
		})
	})
	cmd.Stdout = out.writer(domain.StreamStdout)
	cmd.Stderr = out.writer(domain.StreamStderr)
	setupProcessGroup(cmd, e.opts.KillGrace)

	if err := cmd.Start(); err != nil {
		result.ExitCode = -1
		result.Error = "start: " + err.Error()
		if isResourceExhausted(err) {
			finish()
			return result, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
		}
		finish()
		return result, nil
	}
	waitErr := cmd.Wait()
	killProcessGroup(cmd)
	out.fill(&result)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.Success = true
		result.ExitCode = 0
	case ctx.Err() != nil:
		result.ExitCode = -1
		result.Error = "cancelled: " + ctx.Err().Error()
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		result.TimedOut = true
		result.Error = fmt.Sprintf("timed out after %s", step.Timeout)
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.Error = waitErr.Error()
	case errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		// the shell exited; a background child kept the output pipes open
		result.Success = cmd.ProcessState.Success()
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		result.ExitCode = -1
		result.Error = waitErr.Error()
	}
	finish()
	return result, nil
}

var (
	cdStep     = regexp.MustCompile(`^cd(?:\s+(\S+))?\s*;?$`)
	exportStep = regexp.MustCompile(`^(?:export\s+)?([A-Za-z_][A-Za-z0-9_]*)=(\S*)\s*;?$`)
)

// applyBuiltin handles steps whose only effect would be on the shell itself.
// A subshell would forget them before the next step starts, so they update
// the executor instead.
func (e *LocalExecutor) applyBuiltin(command string, result *domain.ExecutionResult) bool {
	text := strings.TrimSpace(command)
	if m := cdStep.FindStringSubmatch(text); m != nil {
		target := unquote(m[1])
		if target == "-" {
			return false
		}
		dir, err := e.resolveDir(target)
		if err != nil {
			result.ExitCode = 1
			result.Error = "cd: " + err.Error()
			result.Stderr = result.Error
			result.Output = result.Error
			return true
		}
		e.dir = dir
		result.Success = true
		return true
	}
	if m := exportStep.FindStringSubmatch(text); m != nil {
		value := os.Expand(unquote(m[2]), e.lookup)
		if _, seen := e.env[m[1]]; !seen {
			e.order = append(e.order, m[1])
		}
		e.env[m[1]] = value
		result.Success = true
		return true
	}
	return false
}

func (e *LocalExecutor) resolveDir(target string) (string, error) {
	home := filesystem.UserHomeDir()
	switch {
	case target == "" || target == "~":
		target = home
	case strings.HasPrefix(target, "~/"):
		target = filepath.Join(home, target[2:])
	default:
		target = os.Expand(target, e.lookup)
	}
	if !filepath.IsAbs(target) {
		base := e.dir
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = wd
		}
		target = filepath.Join(base, target)
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory", target)
	}
	return target, nil
}

func (e *LocalExecutor) lookup(key string) string {
	if v, ok := e.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// environ returns the process environment with exported step variables
// appended; exec keeps the last value for duplicate keys.
func (e *LocalExecutor) environ() []string {
	env := os.Environ()
	for _, key := range e.order {
		env = append(env, key+"="+e.env[key])
	}
	return env
}

// WorkingDir reports where the next step will run.
func (e *LocalExecutor) WorkingDir() string {
	return e.dir
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// emit sends ev unless there is no observer. Once ctx is done events are
// dropped rather than blocking on a reader that has gone away; the returned
// results stay authoritative.
func (e *LocalExecutor) emit(ctx context.Context, events chan<- domain.ExecutionEvent, ev domain.ExecutionEvent) {
	if events == nil {
		return
	}
	ev.RunID = e.runID
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

var (
	_ ports.CommandExecutor = (*LocalExecutor)(nil)
	_ ports.ExecutorFactory = (*Factory)(nil)
)
