package commands

// CLI-specific constants
const (
	// DefaultEditorCommand is used when $EDITOR is unset.
	DefaultEditorCommand = "vi"

	DefaultTopInputs          = 5
	DisplayTimestampFormat    = "2006-01-02 15:04:05"
	historyInputPreviewLength = 60
	envKeyEditor              = "EDITOR"
)

// Error messages
const (
	ErrConfigLoaderUnavailable  = "config loader unavailable"
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrHistoryStoreUnavailable  = "history store unavailable (is history.enabled false?)"
	ErrKeyRequired              = "--key is required"
	ErrQueryRequired            = "--query required"
	ErrInvalidRetainDays        = "--days must be > 0"
)

// Success messages
const (
	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
	MsgNoHistoryRecorded        = "No history recorded yet."
	MsgNoCustomPatterns         = "No custom patterns."
)
