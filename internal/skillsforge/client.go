// Package skillsforge talks to the SkillsForge event-manager API: it is both
// the session source and the attendance sink for the reconciler.
package skillsforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"moodlesync/internal/reconcile"
)

const (
	unprocessedSessionsPath = "/api/eventManager/unprocessedSessions/Online%20Moodle%20Course"
	updateAttendancePath    = "/api/eventManager/updateAttendance"
)

// Client calls the SkillsForge event-manager API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Fake    bool
}

// New creates a client for the given host (no scheme). With fake set, canned
// responses are returned and no network calls are made.
func New(host, token string, fake bool) *Client {
	return &Client{
		BaseURL: "https://" + host,
		Token:   token,
		Fake:    fake,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// envelope is the SkillsForge response wrapper.
type envelope struct {
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"errorMessage"`
	Data         json.RawMessage `json:"data"`
}

// UnprocessedSessions returns the sessions still awaiting reconciliation.
func (c *Client) UnprocessedSessions(ctx context.Context) ([]reconcile.Session, error) {
	if c.Fake {
		return fakeUnprocessedSessions(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+unprocessedSessionsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-Token", c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skillsforge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("problem querying SkillsForge API: %s", resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("could not decode SkillsForge response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("SkillsForge API error: %s", env.ErrorMessage)
	}

	var sessions []reconcile.Session
	if err := json.Unmarshal(env.Data, &sessions); err != nil {
		return nil, fmt.Errorf("could not decode SkillsForge session list: %w", err)
	}
	return sessions, nil
}

// UpdateAttendance marks every listed user attended for its session and
// returns the number of registrations updated. One call covers the whole
// batch for a cycle.
func (c *Client) UpdateAttendance(ctx context.Context, sessionUsers map[string][]string) (int, error) {
	if c.Fake {
		return len(sessionUsers), nil
	}

	body, err := json.Marshal(map[string]any{
		"newAttendanceType": "ATTENDED",
		"usersOfSessions":   sessionUsers,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+updateAttendancePath, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Auth-Token", c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("skillsforge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("could not submit attendance update: %s", resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return 0, fmt.Errorf("could not decode SkillsForge response: %w", err)
	}
	if !env.Success {
		return 0, fmt.Errorf("SkillsForge API error: %s", env.ErrorMessage)
	}

	var updated int
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		return 0, fmt.Errorf("could not decode updated-registration count: %w", err)
	}
	return updated, nil
}

func fakeUnprocessedSessions() []reconcile.Session {
	notes := "moodle_id = researcher-skills"
	return []reconcile.Session{
		{
			ID:            "11111111-aaaa-bbbb-cccc-000000000001",
			EventCode:     "RS101",
			Title:         "Researcher Skills Moodle",
			SessionNumber: 1,
			StartDate:     "2017-09-16T20:00",
			StartEpoch:    1505592000000,
			EndDate:       "2019-09-16T21:00",
			EndEpoch:      1568667600000,
			AdminNotes:    nil,
		},
		{
			ID:            "22222222-aaaa-bbbb-cccc-000000000002",
			EventCode:     "RS102",
			Title:         "test",
			SessionNumber: 1,
			StartDate:     "2018-08-26T08:00",
			StartEpoch:    1535270400000,
			EndDate:       "2018-08-26T09:00",
			EndEpoch:      1535274000000,
			AdminNotes:    &notes,
		},
	}
}
