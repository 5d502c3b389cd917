package gate

import (
	"sync"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// SharedValidator is the one validator instance every request goes through.
// Validations share the read lock; registry changes take the write lock, so
// a validation sees the registry either before or after a change, never
// halfway.
type SharedValidator struct {
	mu    sync.RWMutex
	inner ports.SecurityValidator
	store ports.PatternStore
}

// NewSharedValidator wraps v. store may be nil, in which case registry
// changes only last for the process lifetime.
func NewSharedValidator(v ports.SecurityValidator, store ports.PatternStore) *SharedValidator {
	return &SharedValidator{inner: v, store: store}
}

// ValidateCommand never fails: internal errors come back as a Critical result.
func (s *SharedValidator) ValidateCommand(text string) domain.ValidationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return failClosed(s.inner.ValidateCommand(text))
}

// ValidateScript never fails: internal errors come back as a Critical result.
func (s *SharedValidator) ValidateScript(text string) domain.ValidationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return failClosed(s.inner.ValidateScript(text))
}

// ValidateAIResponse never fails: internal errors come back as a Critical result.
func (s *SharedValidator) ValidateAIResponse(text string) domain.ValidationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return failClosed(s.inner.ValidateAIResponse(text))
}

func failClosed(result domain.ValidationResult, err error) domain.ValidationResult {
	if err != nil {
		return domain.FailClosed(err)
	}
	return result
}

// AddBlacklistPattern adds a custom pattern and persists the custom list.
// If persisting fails the in-memory add is rolled back.
func (s *SharedValidator) AddBlacklistPattern(pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.inner.CustomPatterns())
	if err := s.inner.AddBlacklistPattern(pattern); err != nil {
		return err
	}
	custom := s.inner.CustomPatterns()
	if s.store == nil || len(custom) == before {
		return nil
	}
	if err := s.store.SaveCustomPatterns(custom); err != nil {
		s.inner.RemoveBlacklistPattern(custom[len(custom)-1])
		return err
	}
	return nil
}

// RemoveBlacklistPattern removes any entry with this raw text. Only the
// custom list is persisted; removing a built-in lasts until restart.
func (s *SharedValidator) RemoveBlacklistPattern(pattern string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inner.RemoveBlacklistPattern(pattern) {
		return false, nil
	}
	if s.store == nil {
		return true, nil
	}
	return true, s.store.SaveCustomPatterns(s.inner.CustomPatterns())
}

// CustomPatterns lists operator-added patterns.
func (s *SharedValidator) CustomPatterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner.CustomPatterns()
}

// Summary returns the validator's configuration summary.
func (s *SharedValidator) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner.ConfigSummary()
}
