// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the application core and external
// adapters (infrastructure). The gate service depends only on these interfaces,
// so the validator, executor, audit store and terminal prompts can each be
// swapped for stubs in tests.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., SecurityValidator, CommandExecutor)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"
	"time"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.nova/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// SecurityValidator classifies untrusted text and owns the blacklist registry.
// Implementations are not required to be safe for concurrent use; the gate
// serialises access.
type SecurityValidator interface {
	ValidateCommand(command string) (domain.ValidationResult, error)
	ValidateScript(script string) (domain.ValidationResult, error)
	ValidateAIResponse(response string) (domain.ValidationResult, error)
	AddBlacklistPattern(pattern string) error
	RemoveBlacklistPattern(pattern string) bool
	CustomPatterns() []string
	ConfigSummary() string
}

// PatternStore persists operator-added blacklist patterns.
type PatternStore interface {
	SaveCustomPatterns(patterns []string) error
}

// CommandExecutor runs approved work. A nil events channel disables streaming.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (domain.ExecutionResult, error)
	ExecuteAutomation(ctx context.Context, automation domain.Automation, events chan<- domain.ExecutionEvent) ([]domain.ExecutionResult, error)
}

// ExecutorFactory builds a fresh executor for each execution request.
type ExecutorFactory interface {
	New(runID string) CommandExecutor
}

// AuditRepository stores gate decisions and execution outcomes.
type AuditRepository interface {
	Save(ctx context.Context, record domain.AuditRecord) error
	Records(ctx context.Context, limit int, search string) ([]domain.AuditRecord, error)
	Clear(ctx context.Context) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Path() string
}

// ConfirmationPrompter handles interactive user confirmations for risky operations.
// Used before a forced command that is not safe is handed to the executor.
type ConfirmationPrompter interface {
	Confirm(command string, result domain.ValidationResult) (bool, error)
	Enabled() bool
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
