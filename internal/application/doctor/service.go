package doctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// CommandClassifier is the part of the gate's validator the self-test uses.
type CommandClassifier interface {
	ValidateCommand(text string) domain.ValidationResult
}

// RulesInspector reports on the rules file without touching the live registry.
type RulesInspector interface {
	Path() string
	BrokenPatterns() ([]string, error)
}

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider  ports.ConfigProvider
	Validator       CommandClassifier
	Rules           RulesInspector
	Audit           ports.AuditRepository
	Executors       ports.ExecutorFactory
	ResolveShell    func(configured string) (string, []string, error)
	// AvailableShells lists shells on PATH; nil skips the check.
	AvailableShells func() []string
}

// Run executes checks and returns a report.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	if err := cfg.ValidateConsistency(); err != nil {
		checks = append(checks, fail("Config file", err.Error()))
	} else {
		checks = append(checks, ok("Config file", fmt.Sprintf("loaded (format %s)", cfg.ConfigFormatVersion)))
	}

	checks = append(checks, s.rulesCheck())
	checks = append(checks, s.selfTest())
	checks = append(checks, s.shellCheck(cfg.GetExecutionShell()))
	if s.AvailableShells != nil {
		checks = append(checks, s.shellsOnPath())
	}
	if s.Executors != nil {
		checks = append(checks, s.executorCheck(ctx))
	}
	checks = append(checks, s.auditCheck(ctx, &cfg))

	return domain.HealthReport{Checks: checks}, nil
}

func (s *Service) rulesCheck() domain.HealthCheck {
	if s.Rules == nil {
		return warn("Rules file", "not configured")
	}
	broken, err := s.Rules.BrokenPatterns()
	if err != nil {
		return fail("Rules file", err.Error())
	}
	if len(broken) > 0 {
		return fail("Rules file", fmt.Sprintf("%s: malformed rules (validation fails closed): %s",
			s.Rules.Path(), strings.Join(broken, "; ")))
	}
	return ok("Rules file", s.Rules.Path())
}

func (s *Service) selfTest() domain.HealthCheck {
	if s.Validator == nil {
		return warn("Validator", "not initialized")
	}
	if got := s.Validator.ValidateCommand("rm -rf /"); got.ThreatLevel != domain.ThreatCritical {
		return fail("Validator", fmt.Sprintf("rm -rf / classified %s, want critical", got.ThreatLevel))
	}
	if got := s.Validator.ValidateCommand("echo ok"); !got.IsSafe() {
		return fail("Validator", fmt.Sprintf("echo ok classified %s: %s", got.ThreatLevel, strings.Join(got.Warnings, "; ")))
	}
	return ok("Validator", "self-test passed")
}

func (s *Service) shellCheck(configured string) domain.HealthCheck {
	if s.ResolveShell == nil {
		return warn("Shell", "resolver not configured")
	}
	path, args, err := s.ResolveShell(configured)
	if err != nil {
		return fail("Shell", err.Error())
	}
	return ok("Shell", strings.TrimSpace(path+" "+strings.Join(args, " ")))
}

func (s *Service) shellsOnPath() domain.HealthCheck {
	shells := s.AvailableShells()
	if len(shells) == 0 {
		return warn("Shells on PATH", "none of the known shells were found")
	}
	return ok("Shells on PATH", strings.Join(shells, ", "))
}

func (s *Service) executorCheck(ctx context.Context) domain.HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result, err := s.Executors.New("doctor").Execute(ctx, "echo nova-doctor")
	if err != nil {
		return fail("Executor", err.Error())
	}
	if !result.Success || strings.TrimSpace(result.Stdout) != "nova-doctor" {
		return fail("Executor", fmt.Sprintf("smoke test failed: exit %d %s", result.ExitCode, result.Error))
	}
	return ok("Executor", fmt.Sprintf("smoke test ran in %s", result.Duration.Round(time.Millisecond)))
}

func (s *Service) auditCheck(ctx context.Context, cfg *domain.Config) domain.HealthCheck {
	if !cfg.IsHistoryEnabled() {
		return warn("Audit store", "disabled in config")
	}
	if s.Audit == nil {
		return warn("Audit store", "not initialized")
	}
	if _, err := s.Audit.Records(ctx, 1, ""); err != nil {
		return fail("Audit store", fmt.Sprintf("%s: %v", s.Audit.Path(), err))
	}
	return ok("Audit store", s.Audit.Path())
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
