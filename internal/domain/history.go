package domain

import "time"

// AuditKind tells which gate call site produced a record.
type AuditKind string

const (
	AuditValidate   AuditKind = "validate"
	AuditCommand    AuditKind = "command"
	AuditScript     AuditKind = "script"
	AuditAutomation AuditKind = "automation"
)

// AuditRecord captures one gate decision and, when it ran, the execution outcome.
type AuditRecord struct {
	Timestamp   time.Time   `json:"timestamp"`
	Kind        AuditKind   `json:"kind"`
	RunID       string      `json:"run_id,omitempty"`
	Input       string      `json:"input"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	Threshold   ThreatLevel `json:"threshold"`
	Allowed     bool        `json:"allowed"`
	Executed    bool        `json:"executed"`
	Success     bool        `json:"success"`
	ExitCode    int         `json:"exit_code"`
	Steps       int         `json:"steps"`
	DurationMS  int64       `json:"duration_ms"`
	Warnings    []string    `json:"warnings,omitempty"`
}
