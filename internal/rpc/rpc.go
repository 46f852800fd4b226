// Package rpc carries the HTTP wire types shared by the gencache server
// and the remote provider.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	PathGet       = "/v1/get"
	PathHeartbeat = "/v1/heartbeat"
	PathSet       = "/v1/set"
	PathHealth    = "/healthz"
)

// GetRequest resolves one entry. Digest is the raw 32-byte fingerprint
// digest (base64 in JSON).
type GetRequest struct {
	Namespace string `json:"namespace"`
	Digest    []byte `json:"digest"`
	Assign    bool   `json:"assign"`
}

type GetResponse struct {
	State        string `json:"state"`
	AssignmentID int64  `json:"assignment_id,omitempty"`
	Value        []byte `json:"value,omitempty"`
}

type HeartbeatRequest struct {
	AssignmentID int64 `json:"assignment_id"`
}

type SetRequest struct {
	AssignmentID int64  `json:"assignment_id"`
	Value        []byte `json:"value"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	Namespaces    int    `json:"namespaces"`
	Entries       int    `json:"entries"`
	Ready         int    `json:"ready"`
	Assigned      int    `json:"assigned"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusError is a non-2xx HTTP response. Callers inspect Code to map
// protocol rejections (409 stale assignment, 413 oversized payload).
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Message)
}

// PostJSON posts in as JSON and decodes the response into out. out may be
// nil when the response body does not matter. Non-2xx responses come back
// as *StatusError with the body text attached.
func PostJSON(ctx context.Context, hc *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		Code:    resp.StatusCode,
		Message: strings.TrimSpace(string(b)),
	}
}
