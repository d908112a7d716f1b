package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"moodlesync/internal/metrics"
)

// SessionSource lists the sessions still awaiting reconciliation.
type SessionSource interface {
	UnprocessedSessions(ctx context.Context) ([]Session, error)
}

// Store persists checkpoints and the run history.
type Store interface {
	LoadCheckpoints(ctx context.Context) (map[string]Checkpoint, error)
	SaveCheckpoints(ctx context.Context, checkpoints map[string]Checkpoint) error
	RecordRun(ctx context.Context, run Run) error
}

// Notifier delivers the per-cycle error report.
type Notifier interface {
	NotifyErrors(ctx context.Context, runID string, errs []string) error
}

// Runner wires one full cycle together: load checkpoints, fetch sessions,
// run the engine, persist, record the run, and report errors.
type Runner struct {
	sessions SessionSource
	engine   *Engine
	store    Store
	notifier Notifier // nil when email reporting is not configured
}

// NewRunner creates a runner. notifier may be nil.
func NewRunner(sessions SessionSource, engine *Engine, store Store, notifier Notifier) *Runner {
	return &Runner{sessions: sessions, engine: engine, store: store, notifier: notifier}
}

// Run executes one reconciliation cycle. A non-nil error means the cycle
// aborted before any checkpoint write (session source or checkpoint store
// unavailable); per-session problems are carried in the returned Run and do
// not fail the cycle. The error report is delivered either way.
func (r *Runner) Run(ctx context.Context) (Run, error) {
	run := Run{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log.Printf("run %s: starting reconciliation cycle", run.ID)

	checkpoints, err := r.store.LoadCheckpoints(ctx)
	if err != nil {
		return r.abort(ctx, run, fmt.Errorf("could not load checkpoints: %w", err))
	}

	sessions, err := r.sessions.UnprocessedSessions(ctx)
	if err != nil {
		return r.abort(ctx, run, fmt.Errorf("could not fetch unprocessed sessions: %w", err))
	}
	run.Sessions = len(sessions)
	log.Printf("run %s: found %d session(s)", run.ID, len(sessions))

	res := r.engine.Reconcile(ctx, sessions, checkpoints)
	run.Updated = res.Updated
	run.Errors = res.Errors

	// Persist whatever progress the cycle made, batch failure or not.
	if err := r.store.SaveCheckpoints(ctx, res.Checkpoints); err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("Could not save last-checked timestamps: %v", err))
	}

	r.finish(ctx, &run)
	log.Printf("run %s: updated %d registration(s), %d error(s)", run.ID, run.Updated, len(run.Errors))
	return run, nil
}

// abort handles a fatal setup failure: the cycle stops before any checkpoint
// write, but the run is still recorded and already-collected errors are
// still reported.
func (r *Runner) abort(ctx context.Context, run Run, cause error) (Run, error) {
	run.Aborted = true
	run.Errors = append(run.Errors, "Could not start: "+cause.Error())
	r.finish(ctx, &run)
	return run, cause
}

func (r *Runner) finish(ctx context.Context, run *Run) {
	now := time.Now().UTC()
	run.FinishedAt = &now

	result := "ok"
	switch {
	case run.Aborted:
		result = "aborted"
	case len(run.Errors) > 0:
		result = "errors"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()
	metrics.SessionsSeen.Add(float64(run.Sessions))
	metrics.RegistrationsUpdated.Add(float64(run.Updated))
	metrics.ErrorsTotal.Add(float64(len(run.Errors)))
	metrics.RunDuration.Observe(now.Sub(run.StartedAt).Seconds())

	if err := r.store.RecordRun(ctx, *run); err != nil {
		log.Printf("run %s: could not record run: %v", run.ID, err)
	}

	if len(run.Errors) == 0 {
		return
	}
	log.Printf("run %s: errors to report:", run.ID)
	for _, msg := range run.Errors {
		log.Printf(" - %s", msg)
	}
	if r.notifier == nil {
		log.Printf("run %s: no notifier configured, error report not emailed", run.ID)
		return
	}
	if err := r.notifier.NotifyErrors(ctx, run.ID, run.Errors); err != nil {
		log.Printf("run %s: error report delivery failed: %v", run.ID, err)
	}
}
