// Package notify delivers the per-cycle error report by email through
// Postmark.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.postmarkapp.com"

// Client sends email through the Postmark API.
type Client struct {
	APIBase    string
	Token      string
	Sender     string
	Recipients []string
	HTTP       *http.Client
}

// New creates a Postmark client for the configured sender and recipients.
func New(token, sender string, recipients []string) *Client {
	return &Client{
		APIBase:    defaultAPIBase,
		Token:      token,
		Sender:     sender,
		Recipients: recipients,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NotifyErrors emails the collected diagnostics for one run.
func (c *Client) NotifyErrors(ctx context.Context, runID string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reconciliation run %s finished with %d error(s):\n\n", runID, len(errs))
	for _, msg := range errs {
		fmt.Fprintf(&b, " - %s\n", msg)
	}

	body, err := json.Marshal(map[string]string{
		"From":     c.Sender,
		"To":       strings.Join(c.Recipients, ","),
		"Subject":  fmt.Sprintf("Moodle attendance sync: %d error(s)", len(errs)),
		"TextBody": b.String(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("postmark request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("postmark error %s: %s", resp.Status, string(detail))
	}
	return nil
}
