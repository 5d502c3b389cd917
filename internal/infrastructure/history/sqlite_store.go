package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// SQLiteStore persists the audit trail in a SQLite database. When the
// database cannot be opened it falls back to a JSONL file next to it.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	fallback *FileStore
	mu       sync.Mutex
}

// NewSQLiteStore creates (or opens) the database at path.
func NewSQLiteStore(path string) *SQLiteStore {
	_ = os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions)
	store := &SQLiteStore{path: path}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		store.fallback = NewFileStore(fallbackPath(path))
		return store
	}
	store.db = db
	if err := store.init(); err != nil {
		_ = db.Close()
		store.db = nil
		store.fallback = NewFileStore(fallbackPath(path))
	}
	return store
}

func fallbackPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".jsonl"
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		kind TEXT NOT NULL,
		run_id TEXT,
		input TEXT,
		threat_level TEXT,
		threshold TEXT,
		allowed INTEGER,
		executed INTEGER,
		success INTEGER,
		exit_code INTEGER,
		steps INTEGER,
		duration_ms INTEGER,
		warnings TEXT
	);`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS audit_created_at ON audit (created_at)`)
	return err
}

// UsingFallback reports whether records go to the JSONL file instead.
func (s *SQLiteStore) UsingFallback() bool {
	return s.db == nil
}

// Save inserts a new record.
func (s *SQLiteStore) Save(ctx context.Context, record domain.AuditRecord) error {
	if s.db == nil {
		return s.fallback.Save(ctx, record)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	warnings, err := json.Marshal(record.Warnings)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit
		(created_at, timestamp, kind, run_id, input, threat_level, threshold, allowed, executed, success, exit_code, steps, duration_ms, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UnixNano(),
		record.Timestamp.Format(time.RFC3339Nano),
		string(record.Kind),
		record.RunID,
		record.Input,
		record.ThreatLevel.String(),
		record.Threshold.String(),
		boolToInt(record.Allowed),
		boolToInt(record.Executed),
		boolToInt(record.Success),
		record.ExitCode,
		record.Steps,
		record.DurationMS,
		string(warnings),
	)
	return err
}

// Records returns audit entries, newest first (limit/search optional).
func (s *SQLiteStore) Records(ctx context.Context, limit int, search string) ([]domain.AuditRecord, error) {
	if s.db == nil {
		return s.fallback.Records(ctx, limit, search)
	}
	builder := strings.Builder{}
	builder.WriteString(`SELECT timestamp, kind, run_id, input, threat_level, threshold, allowed, executed, success, exit_code, steps, duration_ms, warnings FROM audit`)
	var args []interface{}
	if search != "" {
		like := "%" + search + "%"
		builder.WriteString(" WHERE input LIKE ? OR kind LIKE ? OR run_id LIKE ? OR threat_level LIKE ?")
		args = append(args, like, like, like, like)
	}
	builder.WriteString(" ORDER BY created_at DESC, id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var (
			rec                        domain.AuditRecord
			ts, kind, level, threshold string
			warnings                   string
			allowed, executed, success int
		)
		if err := rows.Scan(&ts, &kind, &rec.RunID, &rec.Input, &level, &threshold,
			&allowed, &executed, &success, &rec.ExitCode, &rec.Steps, &rec.DurationMS, &warnings); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = t
		}
		rec.Kind = domain.AuditKind(kind)
		rec.ThreatLevel, _ = domain.ParseThreatLevel(level)
		rec.Threshold, _ = domain.ParseThreatLevel(threshold)
		rec.Allowed = allowed == 1
		rec.Executed = executed == 1
		rec.Success = success == 1
		if warnings != "" && warnings != "null" {
			_ = json.Unmarshal([]byte(warnings), &rec.Warnings)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear deletes all audit entries.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if s.db == nil {
		return s.fallback.Clear(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM audit")
	return err
}

// PruneOlderThan deletes entries recorded before cutoff.
func (s *SQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return s.fallback.PruneOlderThan(ctx, cutoff)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExportJSON writes the audit table to a jsonl file, oldest first.
func (s *SQLiteStore) ExportJSON(ctx context.Context, dest string) error {
	records, err := s.Records(ctx, 0, "")
	if err != nil {
		return err
	}
	return writeJSONL(dest, reversed(records))
}

// Path returns the database path, or the fallback file when in use.
func (s *SQLiteStore) Path() string {
	if s.db == nil {
		return s.fallback.Path()
	}
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.AuditRepository = (*SQLiteStore)(nil)
