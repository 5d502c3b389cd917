package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

type exportingRepo interface {
	ports.AuditRepository
	Exporter
}

func seed(t *testing.T, repo ports.AuditRepository, now time.Time) {
	t.Helper()
	ctx := context.Background()
	records := []domain.AuditRecord{
		{Timestamp: now.Add(-72 * time.Hour), Kind: domain.AuditCommand, Input: "ls -la", ThreatLevel: domain.ThreatSafe, Allowed: true, Executed: true, Success: true},
		{Timestamp: now.Add(-time.Hour), Kind: domain.AuditCommand, Input: "rm -rf /", ThreatLevel: domain.ThreatCritical, Threshold: domain.ThreatSafe, Warnings: []string{"deletes root"}},
		{Timestamp: now, Kind: domain.AuditAutomation, RunID: "run-7", Input: "make build\nmake test", ThreatLevel: domain.ThreatLow, Threshold: domain.ThreatLow, Allowed: true, Executed: true, Steps: 2, DurationMS: 1500},
	}
	for _, rec := range records {
		require.NoError(t, repo.Save(ctx, rec))
	}
}

func stores(t *testing.T) map[string]exportingRepo {
	dir := t.TempDir()
	sqlite := NewSQLiteStore(filepath.Join(dir, "audit.db"))
	t.Cleanup(func() { _ = sqlite.Close() })
	require.False(t, sqlite.UsingFallback())
	return map[string]exportingRepo{
		"sqlite": sqlite,
		"jsonl":  NewFileStore(filepath.Join(dir, "audit.jsonl")),
	}
}

func TestStoresRecords(t *testing.T) {
	now := time.Now()
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, repo, now)

			all, err := repo.Records(ctx, 0, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "run-7", all[0].RunID)
			assert.Equal(t, domain.AuditAutomation, all[0].Kind)
			assert.Equal(t, 2, all[0].Steps)
			assert.Equal(t, int64(1500), all[0].DurationMS)
			assert.Equal(t, domain.ThreatCritical, all[1].ThreatLevel)
			assert.Equal(t, []string{"deletes root"}, all[1].Warnings)
			assert.False(t, all[1].Allowed)
			assert.True(t, all[2].Success)

			limited, err := repo.Records(ctx, 1, "")
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, "run-7", limited[0].RunID)

			found, err := repo.Records(ctx, 0, "rm -rf")
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "rm -rf /", found[0].Input)
		})
	}
}

func TestStoresPruneAndClear(t *testing.T) {
	now := time.Now()
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, repo, now)

			removed, err := repo.PruneOlderThan(ctx, now.Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			left, err := repo.Records(ctx, 0, "")
			require.NoError(t, err)
			assert.Len(t, left, 2)

			require.NoError(t, repo.Clear(ctx))
			left, err = repo.Records(ctx, 0, "")
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	}
}

func TestStoresExport(t *testing.T) {
	now := time.Now()
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, repo, now)
			dest := filepath.Join(t.TempDir(), "export.jsonl")
			require.NoError(t, repo.ExportJSON(context.Background(), dest))

			exported, err := NewFileStore(dest).Records(context.Background(), 0, "")
			require.NoError(t, err)
			require.Len(t, exported, 3)
			assert.Equal(t, "run-7", exported[0].RunID)
			assert.Equal(t, "ls -la", exported[2].Input)
		})
	}
}

func TestSQLiteFallsBackToJSONL(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")
	require.NoError(t, os.Mkdir(dbPath, 0o755))

	store := NewSQLiteStore(dbPath)
	require.True(t, store.UsingFallback())
	assert.Equal(t, filepath.Join(dir, "audit.jsonl"), store.Path())

	require.NoError(t, store.Save(context.Background(), domain.AuditRecord{Kind: domain.AuditValidate, Input: "echo hi"}))
	records, err := store.Records(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n{\"kind\":\"command\",\"input\":\"pwd\",\"threat_level\":\"safe\"}\n"), 0o600))

	records, err := NewFileStore(path).Records(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pwd", records[0].Input)
}

func TestOpenPicksBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := domain.Config{History: domain.HistorySettings{Backend: "jsonl"}}
	assert.Equal(t, filepath.Join(dir, "audit.jsonl"), Open(&cfg, dir).Path())

	cfg.History.Backend = "sqlite"
	repo := Open(&cfg, dir)
	assert.Equal(t, filepath.Join(dir, "audit.db"), repo.Path())
	_ = repo.(*SQLiteStore).Close()
}
