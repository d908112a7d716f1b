package reconcile

import (
	"context"
	"log"
	"strings"
	"time"
)

// CompletionSource returns the users who completed a Moodle course at or
// after sinceEpoch.
type CompletionSource interface {
	CourseCompletions(ctx context.Context, courseID string, sinceEpoch int64) ([]Completion, error)
}

// AttendanceSink marks the given users attended for each session and
// returns the number of registrations updated.
type AttendanceSink interface {
	UpdateAttendance(ctx context.Context, sessionUsers map[string][]string) (int, error)
}

// Engine drives one reconciliation cycle: match sessions to course IDs,
// fetch only the delta since each session's checkpoint, submit a single
// batched attendance update, and advance checkpoints selectively. A failure
// on one session never blocks another, and a checkpoint only advances once
// that session's work is confirmed done.
type Engine struct {
	source CompletionSource
	sink   AttendanceSink
	now    func() time.Time
}

// NewEngine creates an engine over the two remote collaborators.
func NewEngine(source CompletionSource, sink AttendanceSink) *Engine {
	return &Engine{source: source, sink: sink, now: time.Now}
}

// unit is the engine's working state for one session within a cycle.
type unit struct {
	session  Session
	courseID string
	epoch    int64
}

// Reconcile runs one cycle over the given sessions. The input checkpoint map
// is never mutated; the returned Result carries the map to persist, the
// updated-registration count (0 when no batch was sent), and all collected
// diagnostics. Per-session failures are reported, not returned as errors.
func (e *Engine) Reconcile(ctx context.Context, sessions []Session, checkpoints map[string]Checkpoint) Result {
	errs := &Collector{}
	out := make(map[string]Checkpoint, len(checkpoints))
	for id, cp := range checkpoints {
		out[id] = cp
	}

	// Step 1: resolve course IDs. Malformed sessions are reported and never
	// get a checkpoint entry.
	var units []unit
	for _, s := range sessions {
		courseID, ok := CourseID(s.AdminNotes)
		if !ok {
			errs.Addf("%s has a malformed Moodle ID.", FormatSession(s))
			continue
		}
		cp, seen := out[s.ID]
		if !seen {
			out[s.ID] = Checkpoint{}
		}
		log.Printf(" - %s (with Moodle ID %q), last read at epoch %d", FormatSession(s), courseID, cp.LastQueryEpoch)
		units = append(units, unit{session: s, courseID: courseID, epoch: cp.LastQueryEpoch})
	}

	// Step 2: one delta fetch per session. A fetch failure leaves that
	// session's checkpoint exactly as it was so the same range is retried
	// next cycle. An empty result is a confirmed up-to-date state and
	// advances immediately; a non-empty result defers advancement until the
	// batch submission succeeds.
	batch := make(map[string][]string)
	var batched []string
	for _, u := range units {
		completions, err := e.source.CourseCompletions(ctx, u.courseID, u.epoch)
		if err != nil {
			errs.Addf("Session %d for event %s (%s, Moodle ID %s) could not be retrieved from Moodle: %v",
				u.session.SessionNumber, u.session.EventCode, u.session.Title, u.courseID, err)
			continue
		}
		if len(completions) == 0 {
			out[u.session.ID] = Checkpoint{LastQueryEpoch: e.now().Unix()}
			continue
		}
		users := make([]string, 0, len(completions))
		for _, c := range completions {
			users = append(users, strings.ToLower(strings.TrimSpace(c.IDNumber)))
		}
		batch[u.session.ID] = users
		batched = append(batched, u.session.ID)
	}

	// Step 3: single batched submission. On failure no batched checkpoint
	// advances; on success all of them advance to the same instant.
	updated := 0
	if len(batch) > 0 {
		n, err := e.sink.UpdateAttendance(ctx, batch)
		if err != nil {
			errs.Add("Could not submit new attendance records: " + err.Error())
		} else {
			updated = n
			now := e.now().Unix()
			for _, id := range batched {
				out[id] = Checkpoint{LastQueryEpoch: now}
			}
		}
	}

	return Result{Checkpoints: out, Updated: updated, Errors: errs.Messages()}
}
