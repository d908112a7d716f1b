package reconcile

import (
	"fmt"
	"regexp"
	"strings"
)

const courseIDPrefix = "moodle_id = "

// adminNotes must be exactly "moodle_id = <rest>" on a single line.
var courseIDPattern = regexp.MustCompile(`^moodle_id = .*$`)

// CourseID extracts the Moodle course identifier from a session's admin
// notes. The remainder after the prefix is taken verbatim. Returns false for
// absent notes or any other shape.
func CourseID(adminNotes *string) (string, bool) {
	if adminNotes == nil {
		return "", false
	}
	if !courseIDPattern.MatchString(*adminNotes) {
		return "", false
	}
	return strings.TrimPrefix(*adminNotes, courseIDPrefix), true
}

// FormatSession renders the session description used in diagnostics.
func FormatSession(s Session) string {
	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Session %d (%s) for event %q / %q", s.SessionNumber, id, s.EventCode, s.Title)
}
