// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-aper.
//
// go-aper is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.


// Package audit records an audit trail of changes made to the aper
// databases and exported maps.
package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jeremyhahn/go-aper/pkg/aper"
)

// EventType represents the type of audit event
type EventType string

const (
	// EventDatabaseMerged indicates a batch was merged and the database rewritten
	EventDatabaseMerged EventType = "DATABASE_MERGED"

	// EventBatchChecked indicates a batch was merged in memory only
	EventBatchChecked EventType = "BATCH_CHECKED"

	// EventMapExported indicates a postfix map was rendered
	EventMapExported EventType = "MAP_EXPORTED"

	// EventDatabaseCreated indicates an empty database file was created
	EventDatabaseCreated EventType = "DATABASE_CREATED"
)

// Result represents the outcome of an audited operation
type Result string

const (
	// ResultSuccess indicates the operation succeeded
	ResultSuccess Result = "SUCCESS"

	// ResultFailure indicates the operation failed
	ResultFailure Result = "FAILURE"
)

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time
	EventType EventType

	// RunID ties the event to the log lines of the same run
	RunID string

	List   string
	Source string
	Path   string
	Result Result

	ErrorMessage string
	Duration     time.Duration

	// Stats counts the batch records of a merge or check
	Stats *aper.MergeStats

	// Entries is the number of map lines of an export
	Entries int
}

// Logger defines the interface for audit logging
type Logger interface {
	// LogEvent logs a generic audit event
	LogEvent(ctx context.Context, event *Event) error

	// Close releases the audit output
	Close() error
}

// OutputFormat specifies the format for audit log output
type OutputFormat string

const (
	// FormatJSON outputs audit logs in JSON format
	FormatJSON OutputFormat = "json"

	// FormatText outputs audit logs in human-readable text format
	FormatText OutputFormat = "text"
)

// Config holds configuration for the audit logger
type Config struct {
	// Format specifies the output format. Default: JSON.
	Format OutputFormat

	// Output receives one line per event
	Output io.Writer
}

// DefaultLogger implements Logger using slog
type DefaultLogger struct {
	logger *slog.Logger
	closer io.Closer
	now    func() time.Time
}

// NewLogger creates a new audit logger with the specified configuration
func NewLogger(config Config) *DefaultLogger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
		// The event carries its own timestamp
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	l := &DefaultLogger{
		logger: slog.New(handler),
		now:    time.Now,
	}
	if c, ok := config.Output.(io.Closer); ok && config.Output != os.Stdout && config.Output != os.Stderr {
		l.closer = c
	}
	return l
}

// OpenFile creates an audit logger appending to path.
func OpenFile(path string, format OutputFormat) (*DefaultLogger, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0640) // #nosec G304 -- audit path comes from configuration
	if err != nil {
		return nil, err
	}
	return NewLogger(Config{Format: format, Output: f}), nil
}

// LogEvent logs a generic audit event
func (a *DefaultLogger) LogEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}

	attrs := []slog.Attr{
		slog.Time("timestamp", event.Timestamp),
		slog.String("event_type", string(event.EventType)),
		slog.String("result", string(event.Result)),
	}

	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	if event.List != "" {
		attrs = append(attrs, slog.String("list", event.List))
	}
	if event.Source != "" {
		attrs = append(attrs, slog.String("source", event.Source))
	}
	if event.Path != "" {
		attrs = append(attrs, slog.String("path", event.Path))
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", event.ErrorMessage))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	if event.Stats != nil {
		attrs = append(attrs, slog.Group("stats",
			slog.Int("records", event.Stats.Records),
			slog.Int("inserted", event.Stats.Inserted),
			slog.Int("updated", event.Stats.Updated),
			slog.Int("reactivated", event.Stats.Reactivated),
			slog.Int("cleared", event.Stats.Cleared),
			slog.Int("unchanged", event.Stats.Unchanged)))
	}
	if event.EventType == EventMapExported {
		attrs = append(attrs, slog.Int("entries", event.Entries))
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "Audit event: "+string(event.EventType), attrs...)
	return nil
}

// Close closes the audit file, if any.
func (a *DefaultLogger) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// ResultOf maps an operation error to its audit result.
func ResultOf(err error) Result {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// NoOpLogger is an audit logger that discards all events
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op audit logger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogEvent(ctx context.Context, event *Event) error {
	return nil
}

func (n *NoOpLogger) Close() error {
	return nil
}
