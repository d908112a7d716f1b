package reconcile

import "time"

// Session is one offering of a SkillsForge event awaiting attendance
// reconciliation. AdminNotes may carry a Moodle course identifier.
type Session struct {
	ID            string  `json:"id"`
	EventCode     string  `json:"eventCode"`
	Title         string  `json:"title"`
	SessionNumber int     `json:"sessionNumber"`
	StartDate     string  `json:"startDate"`
	StartEpoch    int64   `json:"startEpoch"`
	EndDate       string  `json:"endDate"`
	EndEpoch      int64   `json:"endEpoch"`
	AdminNotes    *string `json:"adminNotes"`
}

// Checkpoint records the last confirmed-complete fetch boundary for a
// session. LastQueryEpoch is epoch seconds; zero means never checked.
type Checkpoint struct {
	LastQueryEpoch int64 `json:"lastQueryEpoch"`
}

// Completion is one user's completion event for a Moodle course.
type Completion struct {
	UserID        int64  `json:"userid"`
	TimeCompleted int64  `json:"timecompleted"`
	IDNumber      string `json:"idnumber"`
}

// Result is what one engine cycle produces: the checkpoint map to persist,
// the number of registrations the sink reported updated, and every
// diagnostic collected along the way.
type Result struct {
	Checkpoints map[string]Checkpoint
	Updated     int
	Errors      []string
}

// Run summarizes one end-to-end reconciliation cycle for the run history.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Sessions   int        `json:"sessions"`
	Updated    int        `json:"updated"`
	Errors     []string   `json:"errors,omitempty"`
	Aborted    bool       `json:"aborted"`
}
