// Package gate is the orchestration boundary: it validates untrusted text,
// applies the threshold of the calling site and only then hands work to a
// fresh executor.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// ErrNotConfirmed is returned when the operator declines a forced execution.
var ErrNotConfirmed = errors.New("execution not confirmed")

// Site names a gate call site.
type Site string

const (
	SiteCommand    Site = "command"
	SiteForced     Site = "forced command"
	SiteScript     Site = "script"
	SiteAutomation Site = "automation"
)

// BlockedError reports a validation verdict above the call site's threshold.
type BlockedError struct {
	Site       Site
	Validation domain.ValidationResult
	Threshold  domain.ThreatLevel
}

func (e *BlockedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s blocked: threat level %s exceeds threshold %s", e.Site, e.Validation.ThreatLevel, e.Threshold)
	if len(e.Validation.Warnings) > 0 {
		fmt.Fprintf(&sb, "; warnings: %s", strings.Join(e.Validation.Warnings, "; "))
	}
	if len(e.Validation.BlockedPatterns) > 0 {
		fmt.Fprintf(&sb, "; patterns: %s", strings.Join(e.Validation.BlockedPatterns, ", "))
	}
	return sb.String()
}

// Service orchestrates validation and execution end-to-end.
type Service struct {
	Validator *SharedValidator
	Executors ports.ExecutorFactory
	Audit     ports.AuditRepository
	Prompter  ports.ConfirmationPrompter
	Policy    domain.Policy
	Logger    ports.Logger
	NewRunID  func() string
}

func (s *Service) checkDependencies() error {
	if s.Validator == nil || s.Executors == nil || s.Logger == nil {
		return errors.New("gate.Service dependencies not satisfied")
	}
	return nil
}

func (s *Service) runID() string {
	if s.NewRunID != nil {
		return s.NewRunID()
	}
	return uuid.NewString()
}

// ValidateCommand classifies a single command and records the verdict.
func (s *Service) ValidateCommand(ctx context.Context, command string) domain.ValidationResult {
	result := s.Validator.ValidateCommand(command)
	s.recordValidation(ctx, command, result)
	return result
}

// ValidateScript classifies a multi-line script and records the verdict.
func (s *Service) ValidateScript(ctx context.Context, script string) domain.ValidationResult {
	result := s.Validator.ValidateScript(script)
	s.recordValidation(ctx, script, result)
	return result
}

// ValidateAIResponse classifies a whole AI response and records the verdict.
func (s *Service) ValidateAIResponse(ctx context.Context, response string) domain.ValidationResult {
	result := s.Validator.ValidateAIResponse(response)
	s.recordValidation(ctx, response, result)
	return result
}

// ExecuteValidatedCommand runs command if it passes the command threshold,
// or the forced threshold when force is set. A forced command that is not
// Safe needs the prompter's confirmation when one is enabled.
func (s *Service) ExecuteValidatedCommand(ctx context.Context, command string, force bool) (domain.ExecutionResponse, error) {
	if err := s.checkDependencies(); err != nil {
		return domain.ExecutionResponse{}, err
	}
	site, threshold := SiteCommand, s.Policy.Command
	if force {
		site, threshold = SiteForced, s.Policy.Forced
	}
	validation := s.Validator.ValidateCommand(command)
	return s.executeSingle(ctx, site, domain.AuditCommand, command, validation, threshold, force)
}

// ExecuteScript validates script and runs it as one unit.
func (s *Service) ExecuteScript(ctx context.Context, script string) (domain.ExecutionResponse, error) {
	if err := s.checkDependencies(); err != nil {
		return domain.ExecutionResponse{}, err
	}
	validation := s.Validator.ValidateScript(script)
	return s.executeSingle(ctx, SiteScript, domain.AuditScript, script, validation, s.Policy.Script, false)
}

func (s *Service) executeSingle(
	ctx context.Context,
	site Site,
	kind domain.AuditKind,
	text string,
	validation domain.ValidationResult,
	threshold domain.ThreatLevel,
	confirm bool,
) (domain.ExecutionResponse, error) {
	resp := domain.ExecutionResponse{Validation: validation}
	record := domain.AuditRecord{
		Kind:        kind,
		Input:       text,
		ThreatLevel: validation.ThreatLevel,
		Threshold:   threshold,
		Warnings:    validation.Warnings,
	}

	if blocked := s.decide(site, validation, threshold); blocked != nil {
		resp.Error = blocked.Error()
		s.record(ctx, record)
		return resp, blocked
	}
	record.Allowed = true

	if confirm && !validation.IsSafe() && s.Prompter != nil && s.Prompter.Enabled() {
		ok, err := s.Prompter.Confirm(text, validation)
		if err != nil {
			return resp, fmt.Errorf("confirmation: %w", err)
		}
		if !ok {
			resp.Error = ErrNotConfirmed.Error()
			record.Allowed = false
			s.record(ctx, record)
			return resp, ErrNotConfirmed
		}
	}

	record.RunID = s.runID()
	result, err := s.Executors.New(record.RunID).Execute(ctx, text)
	resp.Result = &result
	resp.Success = result.Success
	resp.Output = result.Output
	resp.Error = result.Error

	record.Executed = true
	record.Success = result.Success
	record.ExitCode = result.ExitCode
	record.Steps = 1
	record.DurationMS = result.Duration.Milliseconds()
	s.record(ctx, record)
	return resp, err
}

// ExecuteAutomation resolves req, validates the automation against the
// automation threshold and runs it step by step. events may be nil; the
// caller owns the channel and closes it after this returns.
func (s *Service) ExecuteAutomation(ctx context.Context, req domain.AutomationRequest, events chan<- domain.ExecutionEvent) (domain.AutomationReport, error) {
	if err := s.checkDependencies(); err != nil {
		return domain.AutomationReport{}, err
	}
	automation, err := req.Resolve()
	if err != nil {
		return domain.AutomationReport{}, err
	}

	text := automation.Text()
	validation := s.validateAutomation(automation)
	report := domain.AutomationReport{Description: automation.Description(), Validation: validation}
	record := domain.AuditRecord{
		Kind:        domain.AuditAutomation,
		Input:       text,
		ThreatLevel: validation.ThreatLevel,
		Threshold:   s.Policy.Automation,
		Warnings:    validation.Warnings,
	}

	if blocked := s.decide(SiteAutomation, validation, s.Policy.Automation); blocked != nil {
		s.record(ctx, record)
		return report, blocked
	}
	record.Allowed = true

	report.RunID = s.runID()
	record.RunID = report.RunID
	start := time.Now()
	results, err := s.Executors.New(report.RunID).ExecuteAutomation(ctx, automation, events)
	report.Results = results

	record.Executed = len(results) > 0
	record.Success = report.Succeeded()
	record.Steps = len(results)
	record.DurationMS = time.Since(start).Milliseconds()
	for _, r := range results {
		if !r.Success {
			record.ExitCode = r.ExitCode
			break
		}
	}
	s.record(ctx, record)

	s.Logger.Info("automation finished", map[string]interface{}{
		"run_id":    report.RunID,
		"steps":     len(results),
		"succeeded": report.Succeeded(),
	})
	return report, err
}

// validateAutomation checks the same units the executor runs: a script
// statement by statement, a command list one command at a time.
func (s *Service) validateAutomation(automation domain.Automation) domain.ValidationResult {
	if automation.Kind() != domain.AutomationCommands {
		return s.Validator.ValidateScript(automation.Text())
	}
	var result domain.ValidationResult
	for i, cmd := range automation.Commands() {
		result.Merge(s.Validator.ValidateCommand(cmd.Command), fmt.Sprintf("step %d: ", i+1))
	}
	return result
}

func (s *Service) decide(site Site, validation domain.ValidationResult, threshold domain.ThreatLevel) *BlockedError {
	allowed := validation.Allows(threshold)
	fields := map[string]interface{}{
		"site":      string(site),
		"level":     validation.ThreatLevel.String(),
		"threshold": threshold.String(),
		"allowed":   allowed,
	}
	if allowed {
		s.Logger.Info("gate allowed", fields)
		return nil
	}
	fields["patterns"] = strings.Join(validation.BlockedPatterns, ", ")
	s.Logger.Warn("gate denied", fields)
	return &BlockedError{Site: site, Validation: validation, Threshold: threshold}
}

// AddBlacklistPattern adds and persists a custom pattern.
func (s *Service) AddBlacklistPattern(pattern string) error {
	if err := s.Validator.AddBlacklistPattern(pattern); err != nil {
		return err
	}
	s.Logger.Info("blacklist pattern added", map[string]interface{}{"pattern": pattern})
	return nil
}

// RemoveBlacklistPattern removes a pattern and persists the custom list.
func (s *Service) RemoveBlacklistPattern(pattern string) (bool, error) {
	removed, err := s.Validator.RemoveBlacklistPattern(pattern)
	if removed {
		s.Logger.Info("blacklist pattern removed", map[string]interface{}{"pattern": pattern})
	}
	return removed, err
}

// Summary is the validator's configuration snapshot followed by the policy.
func (s *Service) Summary() string {
	var sb strings.Builder
	sb.WriteString(s.Validator.Summary())
	sb.WriteString("Policy thresholds\n")
	fmt.Fprintf(&sb, "  command: %s\n  forced command: %s\n  script: %s\n  automation: %s\n",
		s.Policy.Command, s.Policy.Forced, s.Policy.Script, s.Policy.Automation)
	return sb.String()
}

func (s *Service) recordValidation(ctx context.Context, text string, result domain.ValidationResult) {
	s.record(ctx, domain.AuditRecord{
		Kind:        domain.AuditValidate,
		Input:       text,
		ThreatLevel: result.ThreatLevel,
		Allowed:     result.IsSafe(),
		Warnings:    result.Warnings,
	})
}

// record saves an audit entry even when ctx was cancelled mid-run.
func (s *Service) record(ctx context.Context, rec domain.AuditRecord) {
	if s.Audit == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if err := s.Audit.Save(context.WithoutCancel(ctx), rec); err != nil && s.Logger != nil {
		s.Logger.Warn("audit save failed", map[string]interface{}{"error": err.Error()})
	}
}
