// Package moodle queries course-completion records through the Moodle web
// service REST endpoint.
package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"moodlesync/internal/reconcile"
)

const restPath = "/webservice/rest/server.php"

// Client calls the Moodle web service API.
type Client struct {
	BaseURL  string
	Token    string
	Function string // site-specific WS function name for completion queries
	HTTP     *http.Client
	Fake     bool
}

// New creates a client for the given host (no scheme). With fake set, canned
// completions are returned and no network calls are made.
func New(host, token, function string, fake bool) *Client {
	return &Client{
		BaseURL:  "https://" + host,
		Token:    token,
		Function: function,
		Fake:     fake,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CourseCompletions returns every user who completed the course at or after
// sinceEpoch. Note "json" is the only usable rest format here; "jsonArray"
// makes Moodle answer in XML.
func (c *Client) CourseCompletions(ctx context.Context, courseID string, sinceEpoch int64) ([]reconcile.Completion, error) {
	if c.Fake {
		return fakeCompletions(), nil
	}

	params := url.Values{}
	params.Set("wstoken", c.Token)
	params.Set("wsfunction", c.Function)
	params.Set("moodlewsrestformat", "json")
	params.Set("courseidnumber", courseID)
	params.Set("timestamp", strconv.FormatInt(sinceEpoch, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+restPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moodle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("problem querying Moodle API: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read Moodle response: %w", err)
	}

	// Moodle reports web-service faults as a JSON object with an errorcode,
	// still under HTTP 200.
	var apiErr struct {
		ErrorCode string `json:"errorcode"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorCode != "" {
		return nil, fmt.Errorf("Moodle API exception: %s: %s", apiErr.ErrorCode, apiErr.Message)
	}

	var completions []reconcile.Completion
	if err := json.Unmarshal(body, &completions); err != nil {
		return nil, fmt.Errorf("could not deserialise response from Moodle: %w", err)
	}
	return completions, nil
}

func fakeCompletions() []reconcile.Completion {
	return []reconcile.Completion{
		{UserID: 1234, TimeCompleted: 1508501109, IDNumber: "u1234567"},
		{UserID: 5678, TimeCompleted: 1512731344, IDNumber: "u7654321"},
	}
}
