package domain

import (
	"fmt"
	"strings"
	"time"
)

// Rich Domain Model: 將業務邏輯封裝在 Domain 實體中

// GetPolicy parses the configured thresholds, falling back to DefaultPolicy
// for any that are unset.
func (c *Config) GetPolicy() (Policy, error) {
	policy := DefaultPolicy()

	fields := []struct {
		name  string
		value string
		dest  *ThreatLevel
	}{
		{"policy.command_threshold", c.Policy.CommandThreshold, &policy.Command},
		{"policy.force_threshold", c.Policy.ForceThreshold, &policy.Forced},
		{"policy.script_threshold", c.Policy.ScriptThreshold, &policy.Script},
		{"policy.automation_threshold", c.Policy.AutomationThreshold, &policy.Automation},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		level, err := ParseThreatLevel(field.value)
		if err != nil {
			return Policy{}, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dest = level
	}

	return policy, nil
}

// GetCustomPatternLevel returns the severity assigned to operator-added
// blacklist patterns. Defaults to high.
func (c *Config) GetCustomPatternLevel() (ThreatLevel, error) {
	if strings.TrimSpace(c.Security.CustomPatternLevel) == "" {
		return ThreatHigh, nil
	}
	level, err := ParseThreatLevel(c.Security.CustomPatternLevel)
	if err != nil {
		return ThreatHigh, fmt.Errorf("security.custom_pattern_level: %w", err)
	}
	if level == ThreatSafe {
		return ThreatHigh, fmt.Errorf("security.custom_pattern_level cannot be safe")
	}
	return level, nil
}

// GetMaxInputBytes returns the largest input the validator will inspect
func (c *Config) GetMaxInputBytes() int {
	if c.Security.MaxInputBytes <= 0 {
		return DefaultMaxInputBytes
	}
	return c.Security.MaxInputBytes
}

// GetMaxNestingDepth returns how deep sh -c / eval payloads are re-validated
func (c *Config) GetMaxNestingDepth() int {
	if c.Security.MaxNestingDepth <= 0 {
		return DefaultMaxNestingDepth
	}
	return c.Security.MaxNestingDepth
}

// GetExecutionShell returns the configured shell for command execution
// Returns an empty string for "auto" so the executor can detect one
func (c *Config) GetExecutionShell() string {
	shell := strings.TrimSpace(c.Execution.Shell)
	if shell == "" || strings.EqualFold(shell, "auto") {
		return ""
	}
	return shell
}

// GetStepTimeout returns the per-step execution timeout
func (c *Config) GetStepTimeout() time.Duration {
	if c.Execution.TimeoutSeconds <= 0 {
		return DefaultStepTimeout
	}
	return time.Duration(c.Execution.TimeoutSeconds) * time.Second
}

// GetKillGrace returns how long to wait for pipes after killing a process group
func (c *Config) GetKillGrace() time.Duration {
	if c.Execution.KillGraceSeconds <= 0 {
		return DefaultKillGrace
	}
	return time.Duration(c.Execution.KillGraceSeconds) * time.Second
}

// GetMaxOutputBytes returns the capture limit per step
func (c *Config) GetMaxOutputBytes() int {
	if c.Execution.MaxOutputBytes <= 0 {
		return DefaultMaxOutputBytes
	}
	return c.Execution.MaxOutputBytes
}

// IsHistoryEnabled checks if decisions should be written to the audit trail
func (c *Config) IsHistoryEnabled() bool {
	return c.History.Enabled
}

// GetHistoryBackend returns the audit store backend, sqlite unless jsonl is requested
func (c *Config) GetHistoryBackend() string {
	if strings.EqualFold(c.History.Backend, HistoryBackendJSONL) {
		return HistoryBackendJSONL
	}
	return HistoryBackendSQLite
}

// GetHistoryRetentionDays returns the number of days to retain history
func (c *Config) GetHistoryRetentionDays() int {
	if c.History.RetentionDays <= 0 {
		return DefaultHistoryRetainDays
	}
	return c.History.RetentionDays
}

// ValidateConsistency checks the internal consistency of the configuration
func (c *Config) ValidateConsistency() error {
	policy, err := c.GetPolicy()
	if err != nil {
		return err
	}
	if policy.Forced < policy.Command {
		return fmt.Errorf("policy.force_threshold (%s) must not be stricter than policy.command_threshold (%s)",
			policy.Forced, policy.Command)
	}
	if policy.Forced == ThreatCritical {
		return fmt.Errorf("policy.force_threshold cannot be critical")
	}
	if _, err := c.GetCustomPatternLevel(); err != nil {
		return err
	}
	return nil
}
