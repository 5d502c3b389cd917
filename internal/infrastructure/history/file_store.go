package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// FileStore appends audit records to a jsonl file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save implements ports.AuditRepository.
func (f *FileStore) Save(_ context.Context, record domain.AuditRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), domain.DirectoryPermissions); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, domain.SecureFilePermissions)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.Write(append(data, '\n'))
	return err
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Clear removes the history file.
func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Records returns entries newest first. Lines that fail to decode are skipped.
func (f *FileStore) Records(_ context.Context, limit int, search string) ([]domain.AuditRecord, error) {
	f.mu.Lock()
	all, err := f.readAll()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(search)
	var records []domain.AuditRecord
	for i := len(all) - 1; i >= 0; i-- {
		if needle != "" && !matchesSearch(all[i], needle) {
			continue
		}
		records = append(records, all[i])
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records, nil
}

// PruneOlderThan rewrites the file without entries recorded before cutoff.
func (f *FileStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return 0, err
	}
	kept := all[:0]
	for _, rec := range all {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	removed := int64(len(all) - len(kept))
	if removed == 0 {
		return 0, nil
	}
	return removed, writeJSONL(f.path, kept)
}

// ExportJSON copies the records to dest, oldest first.
func (f *FileStore) ExportJSON(_ context.Context, dest string) error {
	f.mu.Lock()
	all, err := f.readAll()
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return writeJSONL(dest, all)
}

func (f *FileStore) readAll() ([]domain.AuditRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []domain.AuditRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec domain.AuditRecord
		if err := json.Unmarshal(line, &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records, scanner.Err()
}

func matchesSearch(rec domain.AuditRecord, needle string) bool {
	for _, field := range []string{rec.Input, string(rec.Kind), rec.RunID, rec.ThreatLevel.String()} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func writeJSONL(dest string, records []domain.AuditRecord) error {
	if err := os.MkdirAll(filepath.Dir(dest), domain.DirectoryPermissions); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), domain.SecureFilePermissions); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

func reversed(records []domain.AuditRecord) []domain.AuditRecord {
	out := make([]domain.AuditRecord, len(records))
	for i, rec := range records {
		out[len(records)-1-i] = rec
	}
	return out
}

var _ ports.AuditRepository = (*FileStore)(nil)
