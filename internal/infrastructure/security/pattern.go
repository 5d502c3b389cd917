package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

var (
	// ErrEmptyPattern is returned when adding a blank pattern.
	ErrEmptyPattern = errors.New("blacklist pattern is empty")
	// ErrMalformedPattern marks a regex pattern that does not compile.
	ErrMalformedPattern = errors.New("malformed blacklist pattern")
	// ErrInputTooLarge is returned for text above the configured size limit.
	ErrInputTooLarge = errors.New("input exceeds maximum validated size")

	errSafeLevel = errors.New("level safe never blocks a match")
)

// PatternKind selects how a blacklist entry matches text.
type PatternKind string

const (
	KindSubstring PatternKind = "substring"
	KindExact     PatternKind = "exact"
	KindRegex     PatternKind = "regex"
)

// PatternSource records where an entry came from.
type PatternSource string

const (
	SourceBuiltin PatternSource = "builtin"
	SourceRules   PatternSource = "rules"
	SourceCustom  PatternSource = "custom"
)

const (
	regexPrefix = "re:"
	exactPrefix = "="
)

// Pattern is one blacklist entry.
type Pattern struct {
	// Raw is the text the entry was added with, prefix included. It is the
	// registry key and what appears in BlockedPatterns.
	Raw     string
	Kind    PatternKind
	Level   domain.ThreatLevel
	Message string
	Source  PatternSource

	body string
	re   *regexp.Regexp
	err  error
}

// ParsePattern interprets operator syntax: "re:<expr>" is a regex, "=<text>"
// an exact match and anything else a substring.
func ParsePattern(raw string, level domain.ThreatLevel) (Pattern, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Pattern{}, ErrEmptyPattern
	}
	switch {
	case strings.HasPrefix(trimmed, regexPrefix):
		return newPattern(trimmed, KindRegex, strings.TrimPrefix(trimmed, regexPrefix), level, "")
	case strings.HasPrefix(trimmed, exactPrefix) && len(trimmed) > len(exactPrefix):
		return newPattern(trimmed, KindExact, strings.TrimPrefix(trimmed, exactPrefix), level, "")
	default:
		return newPattern(trimmed, KindSubstring, trimmed, level, "")
	}
}

// rawFor builds the registry key for a rules-file entry of the given kind.
func rawFor(kind PatternKind, body string) string {
	switch kind {
	case KindRegex:
		return regexPrefix + body
	case KindExact:
		return exactPrefix + body
	default:
		return body
	}
}

func newPattern(raw string, kind PatternKind, body string, level domain.ThreatLevel, message string) (Pattern, error) {
	p := Pattern{Raw: raw, Kind: kind, Level: level, Message: message, body: body}
	if strings.TrimSpace(body) == "" {
		return Pattern{}, ErrEmptyPattern
	}
	if level == domain.ThreatSafe || !level.Valid() {
		return p, fmt.Errorf("%w %q: %v", ErrMalformedPattern, raw, errSafeLevel)
	}
	switch kind {
	case KindRegex:
		re, err := regexp.Compile(body)
		if err != nil {
			return p, fmt.Errorf("%w %q: %v", ErrMalformedPattern, raw, err)
		}
		p.re = re
	case KindSubstring:
		p.body = strings.ToLower(body)
	case KindExact:
		p.body = strings.TrimSpace(body)
	default:
		return Pattern{}, fmt.Errorf("unknown pattern kind %q", kind)
	}
	if p.Message == "" {
		p.Message = fmt.Sprintf("matched blacklist pattern %q", raw)
	}
	return p, nil
}

// matches reports whether text triggers the pattern. A broken pattern
// returns its compile error.
func (p Pattern) matches(text string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	switch p.Kind {
	case KindRegex:
		return p.re.MatchString(text), nil
	case KindExact:
		return strings.TrimSpace(text) == p.body, nil
	default:
		return strings.Contains(strings.ToLower(text), p.body), nil
	}
}

// Broken reports whether the entry failed to compile when it was loaded.
func (p Pattern) Broken() bool {
	return p.err != nil
}
