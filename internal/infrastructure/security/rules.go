package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MustafaMerchant21/Nova/assets"
	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/pkg/filesystem"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// RuleEntry is one blacklist rule in the YAML rules file.
type RuleEntry struct {
	Pattern string `yaml:"pattern"`
	Kind    string `yaml:"kind,omitempty"`
	Level   string `yaml:"level"`
	Message string `yaml:"message,omitempty"`
}

// RuleSet holds the rules-file entries.
type RuleSet struct {
	Blacklist []RuleEntry `yaml:"blacklist"`
	Custom    []string    `yaml:"custom"`
}

// RulesFile is the YAML schema root.
type RulesFile struct {
	Rules RuleSet `yaml:"rules"`
}

// RulesStore reads and writes the rules file.
type RulesStore struct {
	path string
}

// NewRulesStore builds a store for path. An empty path means ~/.nova/guardrail.yaml.
func NewRulesStore(path string) *RulesStore {
	return &RulesStore{path: ExpandPath(path)}
}

// Path returns the rules file location.
func (s *RulesStore) Path() string {
	return s.path
}

// Load reads the rules file. A missing file yields an empty rule set.
func (s *RulesStore) Load() (RulesFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RulesFile{}, nil
		}
		return RulesFile{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes rules YAML.
func ParseRules(data []byte) (RulesFile, error) {
	var rules RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RulesFile{}, fmt.Errorf("parse rules file: %w", err)
	}
	return rules, nil
}

// EnsureDefault writes the embedded default rules file when none exists.
func (s *RulesStore) EnsureDefault() (bool, error) {
	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), domain.DirectoryPermissions); err != nil {
		return false, err
	}
	if err := os.WriteFile(s.path, assets.DefaultRulesYAML, domain.SecureFilePermissions); err != nil {
		return false, err
	}
	return true, nil
}

// SaveCustomPatterns rewrites the custom list, keeping the blacklist section.
func (s *RulesStore) SaveCustomPatterns(patterns []string) error {
	rules, err := s.Load()
	if err != nil {
		return err
	}
	rules.Rules.Custom = append([]string(nil), patterns...)

	raw, err := yaml.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), domain.DirectoryPermissions); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, domain.SecureFilePermissions); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// ExpandPath resolves "~/" and relative paths against the home directory.
func ExpandPath(path string) string {
	home := filesystem.UserHomeDir()
	if path == "" {
		return filepath.Join(home, ".nova", "guardrail.yaml")
	}
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return filepath.Join(home, path)
}

// apply loads rules-file entries into the registry. Entries whose regex does
// not compile, or whose level is unknown or safe, are stored broken so
// validation fails closed until the file is fixed.
func (rs RuleSet) apply(registry *Registry, customLevel domain.ThreatLevel) {
	for _, entry := range rs.Blacklist {
		kind := PatternKind(strings.ToLower(strings.TrimSpace(entry.Kind)))
		if kind == "" {
			kind = KindRegex
		}
		raw := rawFor(kind, entry.Pattern)
		level, err := domain.ParseThreatLevel(entry.Level)
		if err == nil && level == domain.ThreatSafe {
			err = errSafeLevel
		}
		if err != nil {
			registry.addBroken(raw, domain.ThreatCritical, SourceRules, fmt.Errorf("%w %q: %v", ErrMalformedPattern, raw, err))
			continue
		}
		p, err := newPattern(raw, kind, entry.Pattern, level, entry.Message)
		if err != nil {
			if errors.Is(err, ErrEmptyPattern) {
				continue
			}
			registry.addBroken(raw, level, SourceRules, err)
			continue
		}
		p.Source = SourceRules
		registry.Add(p)
	}
	for _, raw := range rs.Custom {
		p, err := ParsePattern(raw, customLevel)
		if err != nil {
			if errors.Is(err, ErrEmptyPattern) {
				continue
			}
			registry.addBroken(strings.TrimSpace(raw), customLevel, SourceCustom, err)
			continue
		}
		p.Source = SourceCustom
		registry.Add(p)
	}
}

var _ ports.PatternStore = (*RulesStore)(nil)

// BrokenPatterns loads the rules file into a scratch registry and reports
// the entries that would make validation fail closed.
func (s *RulesStore) BrokenPatterns() ([]string, error) {
	rules, err := s.Load()
	if err != nil {
		return nil, err
	}
	registry := &Registry{index: map[string]int{}}
	rules.Rules.apply(registry, domain.ThreatHigh)
	var broken []string
	for _, p := range registry.Broken() {
		broken = append(broken, fmt.Sprintf("%s (%v)", p.Raw, p.err))
	}
	return broken, nil
}

// LoadValidator builds a validator from the rules file. When the file cannot
// be read or parsed a broken entry is left in the registry, so every
// validation fails closed until the file is fixed.
func LoadValidator(opts Options, store *RulesStore) *Validator {
	rules, err := store.Load()
	v := NewValidator(opts, rules)
	if err != nil {
		v.registry.addBroken("rules-file:"+store.Path(), domain.ThreatCritical, SourceRules,
			fmt.Errorf("%w: %v", ErrMalformedPattern, err))
	}
	return v
}
