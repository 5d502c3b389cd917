package domain

import "time"

// OutputStream identifies which pipe a chunk came from.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// ExecutionResult is the final outcome of one step.
type ExecutionResult struct {
	Step      int           `json:"step"`
	Command   string        `json:"command"`
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output,omitempty"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Error     string        `json:"error,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionOutput is an incremental chunk of output from a running step.
type ExecutionOutput struct {
	Step    int          `json:"step"`
	Command string       `json:"command"`
	Stream  OutputStream `json:"stream"`
	Chunk   string       `json:"chunk"`
}

// EventKind distinguishes streamed events.
type EventKind string

const (
	EventStepStarted EventKind = "step_started"
	EventOutput      EventKind = "output"
	EventStepResult  EventKind = "step_result"
)

// ExecutionEvent is what the executor pushes to an observer channel. Exactly
// one of Output and Result is set for output and result events.
type ExecutionEvent struct {
	RunID  string           `json:"run_id"`
	Kind   EventKind        `json:"kind"`
	Step   int              `json:"step"`
	Total  int              `json:"total"`
	Output *ExecutionOutput `json:"output,omitempty"`
	Result *ExecutionResult `json:"result,omitempty"`
}

// ExecutionResponse pairs a validation verdict with the execution outcome for
// single command call sites.
type ExecutionResponse struct {
	Success    bool             `json:"success"`
	Output     string           `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
	Validation ValidationResult `json:"validation"`
	Result     *ExecutionResult `json:"result,omitempty"`
}

// AutomationReport is returned by the automation call site.
type AutomationReport struct {
	RunID       string            `json:"run_id"`
	Description string            `json:"description,omitempty"`
	Validation  ValidationResult  `json:"validation"`
	Results     []ExecutionResult `json:"results"`
}

// Succeeded reports whether every step succeeded.
func (r AutomationReport) Succeeded() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}
