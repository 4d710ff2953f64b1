package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/hyperengineering/sitecms/internal/snapshot"
)

// DefaultSnapshotSchedule runs a snapshot every ten minutes.
const DefaultSnapshotSchedule = "@every 10m"

// SnapshotWriter writes one snapshot of the site config.
type SnapshotWriter interface {
	Write(ctx context.Context) (*snapshot.File, error)
}

// SnapshotWorker keeps the last-known-good snapshot fresh on a cron schedule.
type SnapshotWorker struct {
	writer   SnapshotWriter
	schedule cron.Schedule
	spec     string
}

// NewSnapshotWorker creates a worker for a standard cron expression or
// descriptor such as "@every 10m". An empty spec means DefaultSnapshotSchedule.
func NewSnapshotWorker(writer SnapshotWriter, spec string) (*SnapshotWorker, error) {
	if spec == "" {
		spec = DefaultSnapshotSchedule
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot schedule %q: %w", spec, err)
	}
	return &SnapshotWorker{writer: writer, schedule: sched, spec: spec}, nil
}

// Run writes a snapshot immediately, then on each scheduled tick until ctx
// is cancelled. Overlapping runs are skipped. An in-progress snapshot is
// allowed to finish before Run returns.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot",
		"schedule", w.spec,
	)

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(w.schedule, cron.FuncJob(func() { w.writeSnapshot(ctx) }))

	w.writeSnapshot(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	slog.Info("worker stopped",
		"component", "worker",
		"worker", "snapshot",
		"reason", "context_cancelled",
	)
}

// writeSnapshot writes a snapshot and logs any errors.
func (w *SnapshotWorker) writeSnapshot(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	slog.Debug("snapshot started",
		"component", "worker",
		"action", "snapshot_start",
	)

	f, err := w.writer.Write(ctx)
	switch {
	case errors.Is(err, snapshot.ErrEmpty):
		slog.Info("snapshot skipped",
			"component", "worker",
			"action", "snapshot_skipped",
			"reason", "store_unseeded",
		)
	case err != nil:
		// Check if it's a context cancellation (graceful shutdown)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("snapshot failed",
			"component", "worker",
			"action", "snapshot_failed",
			"error", err,
		)
	default:
		slog.Info("snapshot completed",
			"component", "worker",
			"action", "snapshot_complete",
			"snapshot_id", f.ID,
			"version", f.Version,
		)
	}
}

// cronLogger routes cron's scheduler logs to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, append([]interface{}{"component", "worker"}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"component", "worker", "error", err}, keysAndValues...)...)
}
