// Package jetlog provides structured logging for storage-engine events
// using Go's slog package. The hot read/decode paths never log; only
// handle-level events (open, create, close, poisoning, table creation)
// and the rarer structural mutations (data-page allocation, long-value
// page chains, row migration) are reported, and everything defaults to
// a discard logger until a host attaches a sink.
package jetlog

import (
	"io"
	"log/slog"
)

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// Logger wraps an slog.Logger with the engine's event vocabulary.
type Logger struct {
	s *slog.Logger
}

// New builds a Logger writing to w at the given level and format.
func New(level Level, format Format, w io.Writer) *Logger {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{s: slog.New(handler)}
}

// NewHandler wraps an already-configured slog handler.
func NewHandler(h slog.Handler) *Logger {
	return &Logger{s: slog.New(h)}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{s: slog.New(slog.DiscardHandler)}
}

// With returns a Logger carrying additional context fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}

// DatabaseOpened reports a successful open.
func (l *Logger) DatabaseOpened(pageSize int, readOnly bool) {
	l.s.Info("database opened", "page_size", pageSize, "read_only", readOnly)
}

// DatabaseCreated reports a successful create.
func (l *Logger) DatabaseCreated(pageSize int) {
	l.s.Info("database created", "page_size", pageSize)
}

// DatabaseClosed reports the handle closing.
func (l *Logger) DatabaseClosed() {
	l.s.Info("database closed")
}

// HandlePoisoned reports a fatal invariant violation that left the
// handle refusing further writes.
func (l *Logger) HandlePoisoned(reason string) {
	l.s.Error("database handle poisoned", "reason", reason)
}

// TableCreated reports a new table definition.
func (l *Logger) TableCreated(name string, defPage uint32) {
	l.s.Info("table created", "table", name, "def_page", defPage)
}

// DataPageAllocated reports a table growing by one data page.
func (l *Logger) DataPageAllocated(table string, pageNumber uint32) {
	l.s.Debug("data page allocated", "table", table, "page", pageNumber)
}

// LongValuePages reports long-value content spilling to its own chain.
func (l *Logger) LongValuePages(table string, count int) {
	l.s.Debug("long value pages written", "table", table, "pages", count)
}

// RowMigrated reports a grown row moving to another page behind an
// overflow pointer.
func (l *Logger) RowMigrated(table string, fromPage uint32, fromRow int, toPage uint32, toRow int) {
	l.s.Debug("row migrated", "table", table,
		"from_page", fromPage, "from_row", fromRow,
		"to_page", toPage, "to_row", toRow)
}
