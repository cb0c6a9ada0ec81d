package statesync

import "time"

// Operations reported through Logger.
const (
	OpAttach  = "attach"
	OpRestore = "restore"
	OpPersist = "persist"
	OpDetach  = "detach"
)

// SyncEvent describes one storage operation performed by an engine.
type SyncEvent struct {
	Op           string
	Namespace    string
	Driver       string
	AttachmentID string
	Duration     time.Duration
	Bytes        int
	Skipped      bool
	Report       *RestoreReport
	Err          error
}

// Logger records engine events.
type Logger interface {
	LogSync(SyncEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(SyncEvent)

// LogSync implements Logger.
func (f LoggerFunc) LogSync(event SyncEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogSync(SyncEvent) {}
