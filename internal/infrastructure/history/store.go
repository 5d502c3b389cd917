// Package history keeps the audit trail of gate decisions and executions.
package history

import (
	"context"
	"path/filepath"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/pkg/filesystem"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// Exporter is implemented by both stores; the history export command uses it.
type Exporter interface {
	ExportJSON(ctx context.Context, dest string) error
}

// DefaultDir is ~/.nova/history.
func DefaultDir() string {
	return filepath.Join(filesystem.UserHomeDir(), ".nova", "history")
}

// Open picks the backend named in cfg. SQLite is the default and falls back
// to JSONL on its own when the database cannot be opened.
func Open(cfg *domain.Config, dir string) ports.AuditRepository {
	if dir == "" {
		dir = DefaultDir()
	}
	if cfg.GetHistoryBackend() == domain.HistoryBackendJSONL {
		return NewFileStore(filepath.Join(dir, "audit.jsonl"))
	}
	return NewSQLiteStore(filepath.Join(dir, "audit.db"))
}
