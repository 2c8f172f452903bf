package log

import "kasbook/internal/core"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldDuration    = "duration_ms"
	FieldEntryID     = "entry_id"
	FieldSequenceKey = "sequence_key"
	FieldCategory    = "category"
	FieldDebit       = "debit"
	FieldCredit      = "credit"
	FieldTrigger     = "trigger"
	FieldEntries     = "entries"
	FieldLabel       = "archive_label"
	FieldBackend     = "backend"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentKafka   = "kafka"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpRecalculate = "recalculate"
	OpVerify      = "verify"
	OpArchive     = "archive"
	OpRestore     = "restore"
	OpImport      = "import"
	OpPublish     = "publish"
	OpConsume     = "consume"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEntry adds the identifying and raw fields of a cash-book entry.
func (f LogFields) WithEntry(e core.Entry) LogFields {
	f[FieldEntryID] = e.ID
	f[FieldSequenceKey] = e.SequenceKey
	f[FieldCategory] = e.Category.Code()
	f[FieldDebit] = e.Debit
	f[FieldCredit] = e.Credit
	return f
}

// WithRecompute adds the outcome of a recompute.
func (f LogFields) WithRecompute(trigger string, entries int, durationMs int64) LogFields {
	f[FieldTrigger] = trigger
	f[FieldEntries] = entries
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
