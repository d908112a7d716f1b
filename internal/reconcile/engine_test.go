package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource routes completion fetches through a per-course function table.
type stubSource struct {
	byCourse map[string]func(since int64) ([]Completion, error)
	calls    int
}

func (s *stubSource) CourseCompletions(_ context.Context, courseID string, since int64) ([]Completion, error) {
	s.calls++
	fn, ok := s.byCourse[courseID]
	if !ok {
		return nil, errors.New("unexpected course " + courseID)
	}
	return fn(since)
}

// stubSink records the submitted batch and returns a fixed count or error.
type stubSink struct {
	batches []map[string][]string
	count   int
	err     error
}

func (s *stubSink) UpdateAttendance(_ context.Context, batch map[string][]string) (int, error) {
	s.batches = append(s.batches, batch)
	if s.err != nil {
		return 0, s.err
	}
	return s.count, nil
}

const testNow = int64(1700000000)

func newTestEngine(source CompletionSource, sink AttendanceSink) *Engine {
	e := NewEngine(source, sink)
	e.now = func() time.Time { return time.Unix(testNow, 0) }
	return e
}

func validSession(id, course string) Session {
	notes := "moodle_id = " + course
	return Session{ID: id, EventCode: "EV-" + id, Title: "Event " + id, SessionNumber: 1, AdminNotes: &notes}
}

func completions(ids ...string) []Completion {
	out := make([]Completion, len(ids))
	for i, id := range ids {
		out[i] = Completion{UserID: int64(i + 1), TimeCompleted: 1500000000, IDNumber: id}
	}
	return out
}

func TestReconcileMalformedSessionExcludedAndUntracked(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){}}
	sink := &stubSink{}
	e := newTestEngine(source, sink)

	bad := Session{ID: "sess-b", EventCode: "EV-B", Title: "Broken", SessionNumber: 3, AdminNotes: nil}
	res := e.Reconcile(context.Background(), []Session{bad}, map[string]Checkpoint{})

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Session 3")
	assert.Contains(t, res.Errors[0], "EV-B")
	assert.Contains(t, res.Errors[0], "Broken")
	assert.Contains(t, res.Errors[0], "malformed Moodle ID")

	// No checkpoint entry is ever created for a malformed session.
	assert.NotContains(t, res.Checkpoints, "sess-b")
	assert.Zero(t, source.calls)
	assert.Empty(t, sink.batches)
	assert.Zero(t, res.Updated)
}

func TestReconcileFetchFailureKeepsCheckpoint(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"X": func(int64) ([]Completion, error) { return nil, errors.New("connection refused") },
		"Y": func(int64) ([]Completion, error) { return nil, errors.New("bad gateway") },
	}}
	sink := &stubSink{}
	e := newTestEngine(source, sink)

	sessions := []Session{validSession("seen", "X"), validSession("fresh", "Y")}
	res := e.Reconcile(context.Background(), sessions, map[string]Checkpoint{
		"seen": {LastQueryEpoch: 1234},
	})

	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "could not be retrieved from Moodle")
	assert.Contains(t, res.Errors[0], "Moodle ID X")

	// The previously seen session keeps its old boundary; the never-seen one
	// keeps the lazily-initialized epoch-0 default.
	assert.Equal(t, Checkpoint{LastQueryEpoch: 1234}, res.Checkpoints["seen"])
	assert.Equal(t, Checkpoint{LastQueryEpoch: 0}, res.Checkpoints["fresh"])
	assert.Empty(t, sink.batches)
}

func TestReconcileZeroUsersAdvancesWithoutSubmission(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"Y": func(since int64) ([]Completion, error) {
			assert.Equal(t, int64(1000), since)
			return nil, nil
		},
	}}
	sink := &stubSink{}
	e := newTestEngine(source, sink)

	res := e.Reconcile(context.Background(), []Session{validSession("s1", "Y")}, map[string]Checkpoint{
		"s1": {LastQueryEpoch: 1000},
	})

	assert.Empty(t, res.Errors)
	assert.Empty(t, sink.batches, "empty batch must not be submitted")
	assert.Zero(t, res.Updated)
	assert.Greater(t, res.Checkpoints["s1"].LastQueryEpoch, int64(1000))
	assert.Equal(t, testNow, res.Checkpoints["s1"].LastQueryEpoch)
}

func TestReconcileSubmissionSuccessAdvancesBatchTogether(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"X": func(int64) ([]Completion, error) { return completions("U100", "u200"), nil },
		"Y": func(int64) ([]Completion, error) { return completions("u300"), nil },
	}}
	sink := &stubSink{count: 3}
	e := newTestEngine(source, sink)

	sessions := []Session{validSession("a", "X"), validSession("b", "Y")}
	res := e.Reconcile(context.Background(), sessions, map[string]Checkpoint{})

	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Updated)
	require.Len(t, sink.batches, 1)
	assert.Equal(t, map[string][]string{
		"a": {"u100", "u200"},
		"b": {"u300"},
	}, sink.batches[0])

	// Every batched session shares the same advance time.
	assert.Equal(t, testNow, res.Checkpoints["a"].LastQueryEpoch)
	assert.Equal(t, testNow, res.Checkpoints["b"].LastQueryEpoch)
}

func TestReconcileSubmissionFailureFreezesBatchedCheckpoints(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"X": func(int64) ([]Completion, error) { return completions("u1"), nil },
		"Z": func(int64) ([]Completion, error) { return nil, nil },
	}}
	sink := &stubSink{err: errors.New("503 Service Unavailable")}
	e := newTestEngine(source, sink)

	sessions := []Session{validSession("batched", "X"), validSession("empty", "Z")}
	res := e.Reconcile(context.Background(), sessions, map[string]Checkpoint{
		"batched": {LastQueryEpoch: 500},
	})

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Could not submit new attendance records")
	assert.Zero(t, res.Updated)

	// The fetched-but-unsubmitted session keeps its old boundary; the
	// zero-user session's advancement does not depend on the batch.
	assert.Equal(t, int64(500), res.Checkpoints["batched"].LastQueryEpoch)
	assert.Equal(t, testNow, res.Checkpoints["empty"].LastQueryEpoch)
}

func TestReconcileNormalizesUserIdentifiers(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"X": func(int64) ([]Completion, error) { return completions("  Bob ", "\tALICE\n"), nil },
	}}
	sink := &stubSink{count: 2}
	e := newTestEngine(source, sink)

	res := e.Reconcile(context.Background(), []Session{validSession("a", "X")}, nil)

	require.Len(t, sink.batches, 1)
	assert.Equal(t, []string{"bob", "alice"}, sink.batches[0]["a"])
	assert.Empty(t, res.Errors)
}

// Mixed scenario: session A has a course and one completion, session B has
// no usable admin notes.
func TestReconcileMixedMalformedAndSuccessful(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"X": func(since int64) ([]Completion, error) {
			assert.Zero(t, since)
			return completions("Bob "), nil
		},
	}}
	sink := &stubSink{count: 1}
	e := newTestEngine(source, sink)

	a := validSession("A", "X")
	b := Session{ID: "B", EventCode: "EV-B", Title: "No notes", SessionNumber: 1}
	res := e.Reconcile(context.Background(), []Session{a, b}, map[string]Checkpoint{})

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "malformed Moodle ID")
	require.Len(t, sink.batches, 1)
	assert.Equal(t, map[string][]string{"A": {"bob"}}, sink.batches[0])
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, testNow, res.Checkpoints["A"].LastQueryEpoch)
	assert.NotContains(t, res.Checkpoints, "B")
}

func TestReconcileDoesNotMutateInputCheckpoints(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"X": func(int64) ([]Completion, error) { return nil, nil },
	}}
	e := newTestEngine(source, &stubSink{})

	in := map[string]Checkpoint{"s1": {LastQueryEpoch: 42}}
	res := e.Reconcile(context.Background(), []Session{validSession("s1", "X")}, in)

	assert.Equal(t, int64(42), in["s1"].LastQueryEpoch)
	assert.Equal(t, testNow, res.Checkpoints["s1"].LastQueryEpoch)
}

func TestReconcileFetchesEachSessionOnce(t *testing.T) {
	source := &stubSource{byCourse: map[string]func(int64) ([]Completion, error){
		"X": func(int64) ([]Completion, error) { return nil, nil },
		"Y": func(int64) ([]Completion, error) { return nil, errors.New("boom") },
	}}
	e := newTestEngine(source, &stubSink{})

	sessions := []Session{validSession("a", "X"), validSession("b", "Y")}
	e.Reconcile(context.Background(), sessions, nil)

	assert.Equal(t, 2, source.calls)
}
