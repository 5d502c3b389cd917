package security

import (
	"errors"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// Registry is the ordered set of blacklist entries. It is not safe for
// concurrent mutation; callers serialise access.
type Registry struct {
	entries []Pattern
	index   map[string]int
}

// NewRegistry returns a registry seeded with the built-in signatures.
func NewRegistry() *Registry {
	r := &Registry{index: map[string]int{}}
	for _, p := range builtinPatterns() {
		r.insert(p)
	}
	return r
}

// Add inserts p unless an entry with the same raw text exists. It reports
// whether anything was added.
func (r *Registry) Add(p Pattern) bool {
	if r.Contains(p.Raw) {
		return false
	}
	r.insert(p)
	return true
}

// addBroken stores an entry that could not be built. Every match
// against the registry then fails until it is removed.
func (r *Registry) addBroken(raw string, level domain.ThreatLevel, source PatternSource, err error) {
	if r.Contains(raw) {
		return
	}
	r.insert(Pattern{Raw: raw, Kind: KindRegex, Level: level, Source: source, err: err})
}

func (r *Registry) insert(p Pattern) {
	r.index[p.Raw] = len(r.entries)
	r.entries = append(r.entries, p)
}

// Remove deletes the entry with the given raw text.
func (r *Registry) Remove(raw string) bool {
	pos, ok := r.index[raw]
	if !ok {
		return false
	}
	r.entries = append(r.entries[:pos], r.entries[pos+1:]...)
	delete(r.index, raw)
	for i := pos; i < len(r.entries); i++ {
		r.index[r.entries[i].Raw] = i
	}
	return true
}

// Contains reports whether an entry with this raw text exists.
func (r *Registry) Contains(raw string) bool {
	_, ok := r.index[raw]
	return ok
}

// Match returns every entry that matches any of the candidate texts, in
// registry order and without duplicates. A broken entry makes the whole
// match fail.
func (r *Registry) Match(candidates ...string) ([]Pattern, error) {
	var (
		matched []Pattern
		errs    []error
	)
	for _, p := range r.entries {
		for _, text := range candidates {
			ok, err := p.matches(text)
			if err != nil {
				errs = append(errs, err)
				break
			}
			if ok {
				matched = append(matched, p)
				break
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return matched, nil
}

// Entries returns a copy of all entries.
func (r *Registry) Entries() []Pattern {
	out := make([]Pattern, len(r.entries))
	copy(out, r.entries)
	return out
}

// Custom returns the raw text of operator-added entries in insertion order.
func (r *Registry) Custom() []string {
	var out []string
	for _, p := range r.entries {
		if p.Source == SourceCustom {
			out = append(out, p.Raw)
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Broken returns entries that failed to compile when loaded.
func (r *Registry) Broken() []Pattern {
	var out []Pattern
	for _, p := range r.entries {
		if p.Broken() {
			out = append(out, p)
		}
	}
	return out
}
