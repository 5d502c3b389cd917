package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Execution constants
const (
	// DefaultStepTimeout bounds a single step when nothing else is configured
	DefaultStepTimeout = 60 * time.Second
	// DefaultKillGrace is how long pipes may stay open after a process group is killed
	DefaultKillGrace = 3 * time.Second
	// DefaultMaxOutputBytes caps captured output per step (streaming is not capped)
	DefaultMaxOutputBytes = 1 << 20
)

// Validation constants
const (
	// DefaultMaxInputBytes rejects oversized input before any regex runs
	DefaultMaxInputBytes = 64 << 10
	// DefaultMaxNestingDepth limits re-validation of sh -c / eval payloads
	DefaultMaxNestingDepth = 3
)

// History constants
const (
	// DefaultHistoryLimit is the default number of history records to display
	DefaultHistoryLimit = 20
	// DefaultHistorySearchLimit is the default number of search results to return
	DefaultHistorySearchLimit = 50
	// DefaultHistoryRetainDays is the default number of days to retain history
	DefaultHistoryRetainDays = 30
	// MaxHistoryAnalysisRecords is the maximum number of records to analyze
	MaxHistoryAnalysisRecords = 1000
)

// History backends
const (
	HistoryBackendSQLite = "sqlite"
	HistoryBackendJSONL  = "jsonl"
)
