package domain

// Config mirrors ~/.nova/config.yaml.
type Config struct {
	ConfigFormatVersion string            `yaml:"config_format_version"`
	Security            SecuritySettings  `yaml:"security"`
	Policy              PolicySettings    `yaml:"policy"`
	Execution           ExecutionSettings `yaml:"execution"`
	History             HistorySettings   `yaml:"history"`
}

// SecuritySettings configures the validator and its rules file.
type SecuritySettings struct {
	RulesFile          string `yaml:"rules_file"`
	CustomPatternLevel string `yaml:"custom_pattern_level"`
	MaxInputBytes      int    `yaml:"max_input_bytes"`
	MaxNestingDepth    int    `yaml:"max_nesting_depth"`
}

// PolicySettings holds the per-call-site thresholds: the most severe level a
// call site still lets through to the executor.
type PolicySettings struct {
	CommandThreshold    string `yaml:"command_threshold"`
	ForceThreshold      string `yaml:"force_threshold"`
	ScriptThreshold     string `yaml:"script_threshold"`
	AutomationThreshold string `yaml:"automation_threshold"`
}

// ExecutionSettings controls how commands run.
type ExecutionSettings struct {
	Shell            string `yaml:"shell"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	WorkingDir       string `yaml:"working_dir"`
	MaxOutputBytes   int    `yaml:"max_output_bytes"`
	KillGraceSeconds int    `yaml:"kill_grace_seconds"`
}

// HistorySettings controls the audit trail.
type HistorySettings struct {
	Enabled       bool   `yaml:"enabled"`
	Backend       string `yaml:"backend"`
	RetentionDays int    `yaml:"retention_days"`
}

// Policy is the parsed form of PolicySettings.
type Policy struct {
	Command    ThreatLevel
	Forced     ThreatLevel
	Script     ThreatLevel
	Automation ThreatLevel
}

// DefaultPolicy returns the thresholds used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Command:    ThreatSafe,
		Forced:     ThreatMedium,
		Script:     ThreatLow,
		Automation: ThreatLow,
	}
}
