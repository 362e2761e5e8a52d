package domain

import (
	"context"
	"time"
)

type EventKind string

const (
	EventStart   EventKind = "start"
	EventLog     EventKind = "log"
	EventSuccess EventKind = "success"
	EventFail    EventKind = "fail"
)

// Event is a run status update. Summary fields are set on success and fail.
type Event struct {
	Kind      EventKind
	RunID     string
	Timestamp time.Time
	Message   string

	NewFiles    int
	NewBytes    uint64
	PurgedFiles int
	PurgedBytes uint64
}

// Notifier consumes run status events. Errors are reported but never change
// the outcome of a run.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
