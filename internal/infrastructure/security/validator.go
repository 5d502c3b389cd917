package security

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/unicode/norm"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/pkg/shellparse"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// Options tune the validator.
type Options struct {
	CustomLevel     domain.ThreatLevel
	MaxInputBytes   int
	MaxNestingDepth int
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		CustomLevel:     domain.ThreatHigh,
		MaxInputBytes:   domain.DefaultMaxInputBytes,
		MaxNestingDepth: domain.DefaultMaxNestingDepth,
	}
}

// OptionsFromConfig reads validator options from the security section.
func OptionsFromConfig(cfg domain.Config) (Options, error) {
	level, err := cfg.GetCustomPatternLevel()
	if err != nil {
		return Options{}, err
	}
	return Options{
		CustomLevel:     level,
		MaxInputBytes:   cfg.GetMaxInputBytes(),
		MaxNestingDepth: cfg.GetMaxNestingDepth(),
	}, nil
}

// Validator implements ports.SecurityValidator. It is not safe for
// concurrent use; the gate wraps it in a lock.
type Validator struct {
	registry *Registry
	opts     Options
}

// NewValidator seeds the registry with built-in signatures and then the
// rules-file entries.
func NewValidator(opts Options, rules RulesFile) *Validator {
	defaults := DefaultOptions()
	if !opts.CustomLevel.Valid() || opts.CustomLevel == domain.ThreatSafe {
		opts.CustomLevel = defaults.CustomLevel
	}
	if opts.MaxInputBytes <= 0 {
		opts.MaxInputBytes = defaults.MaxInputBytes
	}
	if opts.MaxNestingDepth <= 0 {
		opts.MaxNestingDepth = defaults.MaxNestingDepth
	}
	registry := NewRegistry()
	rules.Rules.apply(registry, opts.CustomLevel)
	return &Validator{registry: registry, opts: opts}
}

func (v *Validator) checkSize(text string) error {
	if len(text) > v.opts.MaxInputBytes {
		return fmt.Errorf("%w: %s > %s", ErrInputTooLarge,
			humanize.IBytes(uint64(len(text))), humanize.IBytes(uint64(v.opts.MaxInputBytes)))
	}
	return nil
}

// ValidateCommand implements ports.SecurityValidator.
func (v *Validator) ValidateCommand(command string) (domain.ValidationResult, error) {
	if err := v.checkSize(command); err != nil {
		return domain.ValidationResult{}, err
	}
	return v.inspect(command, 0)
}

// ValidateScript implements ports.SecurityValidator. Each statement is
// checked on its own and the results merged worst-case.
func (v *Validator) ValidateScript(script string) (domain.ValidationResult, error) {
	if err := v.checkSize(script); err != nil {
		return domain.ValidationResult{}, err
	}
	return v.inspectScript(script)
}

func (v *Validator) inspectScript(script string) (domain.ValidationResult, error) {
	var result domain.ValidationResult
	statements, err := shellparse.Split(script)
	if err != nil {
		result.Flag(domain.ThreatLow, "script could not be parsed; validated line by line", HeuristicPattern(HeuristicUnparseable))
	}
	for _, stmt := range statements {
		stmtResult, err := v.inspect(stmt.Text, 0)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("line %d: %w", stmt.Line, err)
		}
		result.Merge(stmtResult, fmt.Sprintf("line %d: ", stmt.Line))
	}
	return result, nil
}

func (v *Validator) inspect(text string, depth int) (domain.ValidationResult, error) {
	var result domain.ValidationResult

	if hasControlBytes(text) {
		result.Flag(domain.ThreatHigh, "input contains NUL or control bytes", HeuristicPattern(HeuristicSuspiciousInput))
	}
	normalized := norm.NFKC.String(text)
	if normalized != text {
		result.Flag(domain.ThreatMedium, "text changes under Unicode normalisation (possible homoglyphs)", HeuristicPattern(HeuristicUnicodeHomoglyph))
	}

	candidates := []string{normalized}
	if minified, err := shellparse.Minify(normalized); err == nil && minified != normalized {
		candidates = append(candidates, minified)
	}
	matches, err := v.registry.Match(candidates...)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	for _, p := range matches {
		result.Flag(p.Level, p.Message, p.Raw)
	}

	calls, err := shellparse.Calls(normalized)
	if err != nil {
		result.Flag(domain.ThreatLow, "shell parser rejected the text; analysed token by token", HeuristicPattern(HeuristicUnparseable))
		calls = fallbackCalls(normalized)
	}
	for _, check := range callChecks {
		for _, f := range check(calls) {
			result.Flag(f.level, f.warning, HeuristicPattern(f.id))
		}
	}

	for _, payload := range nestedPayloads(calls) {
		if depth+1 > v.opts.MaxNestingDepth {
			result.Flag(domain.ThreatHigh,
				fmt.Sprintf("shell nesting deeper than %d levels", v.opts.MaxNestingDepth),
				HeuristicPattern(HeuristicNestedShell))
			continue
		}
		inner, err := v.inspect(payload, depth+1)
		if err != nil {
			return domain.ValidationResult{}, err
		}
		if inner.IsSafe() {
			continue
		}
		result.Flag(inner.ThreatLevel,
			fmt.Sprintf("nested shell payload classified %s", inner.ThreatLevel),
			HeuristicPattern(HeuristicNestedShell))
		result.Merge(inner, "nested: ")
	}

	return result, nil
}

func hasControlBytes(text string) bool {
	for _, r := range text {
		if (r < 0x20 && r != '\t' && r != '\n' && r != '\r') || r == 0x7f {
			return true
		}
	}
	return false
}

// AddBlacklistPattern implements ports.SecurityValidator. Adding an existing
// pattern is a no-op.
func (v *Validator) AddBlacklistPattern(pattern string) error {
	p, err := ParsePattern(pattern, v.opts.CustomLevel)
	if err != nil {
		return err
	}
	p.Source = SourceCustom
	v.registry.Add(p)
	return nil
}

// RemoveBlacklistPattern implements ports.SecurityValidator.
func (v *Validator) RemoveBlacklistPattern(pattern string) bool {
	return v.registry.Remove(strings.TrimSpace(pattern))
}

// CustomPatterns implements ports.SecurityValidator.
func (v *Validator) CustomPatterns() []string {
	return v.registry.Custom()
}

// BrokenPatterns lists rules that failed to load.
func (v *Validator) BrokenPatterns() []Pattern {
	return v.registry.Broken()
}

// ConfigSummary implements ports.SecurityValidator.
func (v *Validator) ConfigSummary() string {
	entries := v.registry.Entries()
	bySource := map[PatternSource]int{}
	byLevel := map[domain.ThreatLevel]int{}
	var broken []string
	for _, p := range entries {
		bySource[p.Source]++
		byLevel[p.Level]++
		if p.Broken() {
			broken = append(broken, p.Raw)
		}
	}

	var sb strings.Builder
	sb.WriteString("Security validator\n")
	fmt.Fprintf(&sb, "  Blacklist patterns: %d (built-in %d, rules file %d, custom %d)\n",
		len(entries), bySource[SourceBuiltin], bySource[SourceRules], bySource[SourceCustom])

	levels := domain.AllThreatLevels()
	sort.Slice(levels, func(i, j int) bool { return levels[i] > levels[j] })
	var counts []string
	for _, level := range levels {
		if byLevel[level] > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", level, byLevel[level]))
		}
	}
	fmt.Fprintf(&sb, "  By severity: %s\n", strings.Join(counts, " "))

	if custom := v.registry.Custom(); len(custom) > 0 {
		fmt.Fprintf(&sb, "  Custom patterns (level %s):\n", v.opts.CustomLevel)
		for _, raw := range custom {
			fmt.Fprintf(&sb, "    - %s\n", raw)
		}
	}
	if len(broken) > 0 {
		fmt.Fprintf(&sb, "  Broken patterns (validation fails closed): %s\n", strings.Join(broken, ", "))
	}

	sb.WriteString("  Heuristics:\n")
	for _, h := range HeuristicCategories() {
		scope := ""
		if h.AIOnly {
			scope = ", AI responses"
		}
		fmt.Fprintf(&sb, "    - %s (%s%s): %s\n", h.ID, h.Level, scope, h.Description)
	}
	fmt.Fprintf(&sb, "  Limits: max input %s, nesting depth %d\n",
		humanize.IBytes(uint64(v.opts.MaxInputBytes)), v.opts.MaxNestingDepth)
	return sb.String()
}

var _ ports.SecurityValidator = (*Validator)(nil)
