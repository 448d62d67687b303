package main

import (
	"context"
	"errors"
	"log/slog"

	"hookswitch/internal"

	"github.com/riverqueue/river"
)

// EventArgs is the job payload the riverqueue publisher inserts.
type EventArgs internal.Event

// Kind implements river.JobArgs.
func (EventArgs) Kind() string { return internal.RiverEventKind }

// EventWorker logs every delivered webhook event. Jobs without an event
// type are cancelled rather than retried.
type EventWorker struct {
	river.WorkerDefaults[EventArgs]

	Logger *slog.Logger
}

// Work implements river.Worker.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventArgs]) error {
	if job.Args.Type == "" {
		return river.JobCancel(errors.New("event envelope has no type"))
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event received",
		"job_id", job.ID,
		"queue", job.Queue,
		"attempt", job.Attempt,
		"event_id", job.Args.ID,
		"event_type", job.Args.Type,
		"request_id", job.Args.RequestID,
	)
	return nil
}
