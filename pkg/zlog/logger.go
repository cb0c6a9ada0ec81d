// Package zlog adapts statesync engine events onto a zerolog.Logger.
package zlog

import (
	"github.com/rs/zerolog"

	statesync "github.com/goliatone/go-statesync"
)

// Option configures the adapter.
type Option func(*Logger)

// WithSyncLevel sets the level used for successful restore and persist
// events. Attach and detach always log at info, failures at error.
func WithSyncLevel(level zerolog.Level) Option {
	return func(l *Logger) {
		l.syncLevel = level
	}
}

// WithRecordSize toggles the bytes field on persist events.
func WithRecordSize(enabled bool) Option {
	return func(l *Logger) {
		l.recordSize = enabled
	}
}

// Logger implements statesync.Logger.
type Logger struct {
	log        zerolog.Logger
	syncLevel  zerolog.Level
	recordSize bool
}

var _ statesync.Logger = (*Logger)(nil)

// New wraps log. The "component" field is set to "statesync".
func New(log zerolog.Logger, opts ...Option) *Logger {
	l := &Logger{
		log:        log.With().Str("component", "statesync").Logger(),
		syncLevel:  zerolog.DebugLevel,
		recordSize: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// LogSync implements statesync.Logger.
func (l *Logger) LogSync(event statesync.SyncEvent) {
	entry := l.log.WithLevel(l.level(event)).
		Str("op", event.Op).
		Str("namespace", event.Namespace).
		Str("driver", event.Driver).
		Str("attachment_id", event.AttachmentID)

	if event.Duration > 0 {
		entry = entry.Dur("duration", event.Duration)
	}
	if l.recordSize && event.Op == statesync.OpPersist {
		entry = entry.Int("bytes", event.Bytes)
	}
	if event.Skipped {
		entry = entry.Bool("skipped", true)
	}
	if report := event.Report; report != nil {
		entry = entry.
			Bool("record_found", report.RecordFound).
			Bool("corrupt", report.Corrupt).
			Bool("merged", report.Merged).
			Int("applied", report.Applied).
			Strs("paths", report.FoundPaths())
	}
	if event.Err != nil {
		entry = entry.Err(event.Err)
	}
	entry.Msg("statesync " + event.Op)
}

func (l *Logger) level(event statesync.SyncEvent) zerolog.Level {
	switch {
	case event.Err != nil:
		return zerolog.ErrorLevel
	case event.Report != nil && event.Report.Corrupt:
		return zerolog.WarnLevel
	case event.Skipped:
		return zerolog.TraceLevel
	case event.Op == statesync.OpAttach || event.Op == statesync.OpDetach:
		return zerolog.InfoLevel
	default:
		return l.syncLevel
	}
}
