package config

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// Validate ensures config structure is consistent.
func Validate(cfg domain.Config) error {
	if err := validateSecurity(cfg.Security); err != nil {
		return err
	}
	if err := validateExecution(cfg.Execution); err != nil {
		return err
	}
	if err := validateHistory(cfg.History); err != nil {
		return err
	}
	return cfg.ValidateConsistency()
}

func validateSecurity(sec domain.SecuritySettings) error {
	if strings.TrimSpace(sec.RulesFile) == "" {
		return fmt.Errorf("security.rules_file must be set")
	}
	if sec.MaxInputBytes < 0 {
		return fmt.Errorf("security.max_input_bytes must be >= 0")
	}
	if sec.MaxNestingDepth < 0 {
		return fmt.Errorf("security.max_nesting_depth must be >= 0")
	}
	return nil
}

func validateExecution(exec domain.ExecutionSettings) error {
	if exec.TimeoutSeconds <= 0 {
		return fmt.Errorf("execution.timeout_seconds must be > 0")
	}
	if exec.KillGraceSeconds < 0 {
		return fmt.Errorf("execution.kill_grace_seconds must be >= 0")
	}
	if exec.MaxOutputBytes < 0 {
		return fmt.Errorf("execution.max_output_bytes must be >= 0")
	}
	return nil
}

func validateHistory(history domain.HistorySettings) error {
	switch strings.ToLower(strings.TrimSpace(history.Backend)) {
	case "", domain.HistoryBackendSQLite, domain.HistoryBackendJSONL:
	default:
		return fmt.Errorf("history.backend must be %s|%s, got %s",
			domain.HistoryBackendSQLite, domain.HistoryBackendJSONL, history.Backend)
	}
	if history.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must be >= 0")
	}
	return nil
}

// Diff reports how current departs from defaults; empty means identical.
func Diff(defaults, current domain.Config) string {
	return cmp.Diff(defaults, current)
}
