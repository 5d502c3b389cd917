package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ThreatLevel grades how risky a piece of untrusted text is. The order of the
// constants is significant: gate decisions compare levels with <=.
type ThreatLevel int

const (
	ThreatSafe ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

var threatLevelNames = [...]string{"safe", "low", "medium", "high", "critical"}

// AllThreatLevels lists every level from least to most severe.
func AllThreatLevels() []ThreatLevel {
	return []ThreatLevel{ThreatSafe, ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical}
}

func (l ThreatLevel) String() string {
	if l < ThreatSafe || l > ThreatCritical {
		return "unknown"
	}
	return threatLevelNames[l]
}

// Valid reports whether l is one of the declared levels.
func (l ThreatLevel) Valid() bool {
	return l >= ThreatSafe && l <= ThreatCritical
}

// Max returns the more severe of l and other.
func (l ThreatLevel) Max(other ThreatLevel) ThreatLevel {
	if other > l {
		return other
	}
	return l
}

// ParseThreatLevel converts a case-insensitive level name.
func ParseThreatLevel(value string) (ThreatLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "safe":
		return ThreatSafe, nil
	case "low":
		return ThreatLow, nil
	case "medium":
		return ThreatMedium, nil
	case "high":
		return ThreatHigh, nil
	case "critical":
		return ThreatCritical, nil
	default:
		return ThreatSafe, fmt.Errorf("unknown threat level %q", value)
	}
}

// MarshalText implements encoding.TextMarshaler (used by yaml and json).
func (l ThreatLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid threat level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ThreatLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseThreatLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ValidationResult is the verdict for one validation call.
//
// Safety is derived from the level rather than stored, so a result can never
// claim to be safe at a non-Safe level.
type ValidationResult struct {
	ThreatLevel     ThreatLevel
	Warnings        []string
	BlockedPatterns []string
}

// IsSafe reports whether no blacklist entry or heuristic fired.
func (r ValidationResult) IsSafe() bool {
	return r.ThreatLevel == ThreatSafe
}

// Allows reports whether the result is acceptable at the given threshold.
func (r ValidationResult) Allows(threshold ThreatLevel) bool {
	return r.IsSafe() || r.ThreatLevel <= threshold
}

// Flag records one triggered check. The level only ever escalates.
func (r *ValidationResult) Flag(level ThreatLevel, warning, pattern string) {
	r.ThreatLevel = r.ThreatLevel.Max(level)
	if warning != "" {
		r.Warnings = append(r.Warnings, warning)
	}
	if pattern != "" {
		r.BlockedPatterns = append(r.BlockedPatterns, pattern)
	}
}

// Merge folds other into r using the worst case. Warnings taken from other are
// prefixed with context (for example "line 3: ") when context is non-empty.
func (r *ValidationResult) Merge(other ValidationResult, context string) {
	r.ThreatLevel = r.ThreatLevel.Max(other.ThreatLevel)
	for _, warning := range other.Warnings {
		r.Warnings = append(r.Warnings, context+warning)
	}
	r.BlockedPatterns = append(r.BlockedPatterns, other.BlockedPatterns...)
}

// Summary renders the level with its warnings on one line.
func (r ValidationResult) Summary() string {
	if r.IsSafe() {
		return "safe"
	}
	return fmt.Sprintf("%s: %s", r.ThreatLevel, strings.Join(r.Warnings, "; "))
}

// FailClosed maps an internal validation failure onto the most severe
// outcome. Every call site that wraps the validator goes through here.
func FailClosed(err error) ValidationResult {
	msg := "validation failed"
	if err != nil {
		msg = err.Error()
	}
	return ValidationResult{
		ThreatLevel:     ThreatCritical,
		Warnings:        []string{msg},
		BlockedPatterns: []string{msg},
	}
}

type validationResultJSON struct {
	IsSafe          bool        `json:"is_safe"`
	ThreatLevel     ThreatLevel `json:"threat_level"`
	Warnings        []string    `json:"warnings"`
	BlockedPatterns []string    `json:"blocked_patterns"`
}

// MarshalJSON emits the boundary shape including the derived is_safe flag.
func (r ValidationResult) MarshalJSON() ([]byte, error) {
	out := validationResultJSON{
		IsSafe:          r.IsSafe(),
		ThreatLevel:     r.ThreatLevel,
		Warnings:        r.Warnings,
		BlockedPatterns: r.BlockedPatterns,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if out.BlockedPatterns == nil {
		out.BlockedPatterns = []string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the boundary shape. A payload that claims is_safe at
// a non-safe level is rejected.
func (r *ValidationResult) UnmarshalJSON(data []byte) error {
	var in validationResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.IsSafe != (in.ThreatLevel == ThreatSafe) {
		return fmt.Errorf("inconsistent validation result: is_safe=%t at level %s", in.IsSafe, in.ThreatLevel)
	}
	r.ThreatLevel = in.ThreatLevel
	r.Warnings = in.Warnings
	r.BlockedPatterns = in.BlockedPatterns
	return nil
}
