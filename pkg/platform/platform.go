// Package platform submits approved shifts to the workforce platform.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ShiftSubmission is the payload the platform accepts for one shift.
type ShiftSubmission struct {
	Reference       string    `json:"reference"`
	TaskID          uint      `json:"task_id"`
	EmployeeID      uint      `json:"employee_id"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Kind            string    `json:"kind"`
}

// Submitter pushes one shift to the external platform.
type Submitter interface {
	Submit(ctx context.Context, sub ShiftSubmission) error
}

// HTTPSubmitter posts shifts to the platform's REST endpoint.
type HTTPSubmitter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSubmitter returns a submitter for the given platform endpoint.
func NewHTTPSubmitter(baseURL, apiKey string) *HTTPSubmitter {
	return &HTTPSubmitter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Submit posts one shift. Any non-2xx response is an error carrying the
// platform's response body.
func (s *HTTPSubmitter) Submit(ctx context.Context, sub ShiftSubmission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding shift: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/shifts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting shift: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("platform rejected shift (%d): %s", resp.StatusCode, string(msg))
	}
	return nil
}
