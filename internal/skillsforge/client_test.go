package skillsforge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(srv *httptest.Server) *Client {
	return &Client{BaseURL: srv.URL, Token: "sekrit", HTTP: srv.Client()}
}

func TestUnprocessedSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "sekrit", r.Header.Get("X-Auth-Token"))
		assert.Contains(t, r.URL.Path, "/api/eventManager/unprocessedSessions/")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": [
				{"id": "abc-123", "eventCode": "RS101", "title": "Researcher Skills",
				 "sessionNumber": 2, "adminNotes": "moodle_id = rs101"},
				{"id": "def-456", "eventCode": "RS102", "title": "Other",
				 "sessionNumber": 1, "adminNotes": null}
			]
		}`))
	}))
	defer srv.Close()

	sessions, err := testClient(srv).UnprocessedSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "abc-123", sessions[0].ID)
	assert.Equal(t, 2, sessions[0].SessionNumber)
	require.NotNil(t, sessions[0].AdminNotes)
	assert.Equal(t, "moodle_id = rs101", *sessions[0].AdminNotes)
	assert.Nil(t, sessions[1].AdminNotes)
}

func TestUnprocessedSessionsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv).UnprocessedSessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem querying SkillsForge API")
}

func TestUnprocessedSessionsEnvelopeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "errorMessage": "token expired"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).UnprocessedSessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

func TestUpdateAttendance(t *testing.T) {
	var payload struct {
		NewAttendanceType string              `json:"newAttendanceType"`
		UsersOfSessions   map[string][]string `json:"usersOfSessions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/eventManager/updateAttendance", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"success": true, "data": 2}`))
	}))
	defer srv.Close()

	updated, err := testClient(srv).UpdateAttendance(context.Background(), map[string][]string{
		"abc-123": {"u100", "u200"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, "ATTENDED", payload.NewAttendanceType)
	assert.Equal(t, map[string][]string{"abc-123": {"u100", "u200"}}, payload.UsersOfSessions)
}

func TestUpdateAttendanceRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "errorMessage": "unknown session"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).UpdateAttendance(context.Background(), map[string][]string{"x": {"u"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown session")
}

func TestFakeMode(t *testing.T) {
	c := New("unused.example.ac.uk", "", true)

	sessions, err := c.UnprocessedSessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	updated, err := c.UpdateAttendance(context.Background(), map[string][]string{"a": {"u"}})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
}
