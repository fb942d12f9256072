// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Error variables for common backend failures. A *TransportError wraps one of
// these when the status code maps to it, so errors.Is works on either.
var (
	// ErrUnauthorized indicates the bearer token was missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the project or conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRequest indicates the backend rejected the request body.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("server error")

	// ErrIdleTimeout indicates an open stream delivered no bytes within the
	// configured idle timeout.
	ErrIdleTimeout = errors.New("stream idle timeout")

	// ErrStreamFailed indicates the backend reported a failure inside an
	// otherwise healthy stream (an "event: error" frame).
	ErrStreamFailed = errors.New("backend reported a stream failure")

	// ErrReaderClosed is returned by ChunkReader.Next after Close.
	ErrReaderClosed = errors.New("chunk reader closed")
)

// Operation names used in TransportError.Op.
const (
	OpCreateConversation = "create conversation"
	OpListConversations  = "list conversations"
	OpListMessages       = "list messages"
	OpOpenStream         = "open stream"
	OpReadStream         = "read stream"
)

// =============================================================================
// TRANSPORT ERROR
// =============================================================================

// TransportError describes a network or HTTP failure talking to the backend.
type TransportError struct {
	Op     string // operation that failed
	Status int    // HTTP status, 0 when no response was received
	Detail string // backend-supplied detail, if any

	// RetryAfter is parsed from a 429 response.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		b.WriteString(": HTTP ")
		b.WriteString(strconv.Itoa(e.Status))
	}
	switch {
	case e.Detail != "":
		b.WriteString(": ")
		b.WriteString(e.Detail)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request could succeed.
func (e *TransportError) Temporary() bool {
	switch {
	case errors.Is(e.Err, ErrRateLimited), errors.Is(e.Err, ErrServer), errors.Is(e.Err, ErrIdleTimeout):
		return true
	case e.Status == 0:
		// Network failures without a response.
		return true
	default:
		return false
	}
}

// IsTransportError reports whether err is, or wraps, a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// =============================================================================
// ERROR RESPONSE MAPPING
// =============================================================================

// errorResponse is the FastAPI error body. Detail is either a string or a
// list of validation errors.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type validationIssue struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseDetail extracts a human-readable detail from an error body.
func parseDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || len(er.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(er.Detail, &s); err == nil {
		return s
	}

	var issues []validationIssue
	if err := json.Unmarshal(er.Detail, &issues); err == nil && len(issues) > 0 {
		msgs := make([]string, 0, len(issues))
		for _, is := range issues {
			if len(is.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", is.Loc[len(is.Loc)-1], is.Msg))
			} else {
				msgs = append(msgs, is.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return string(er.Detail)
}

// handleErrorResponse converts an HTTP error response into a *TransportError.
func handleErrorResponse(op string, resp *http.Response, body []byte) *TransportError {
	te := &TransportError{
		Op:     op,
		Status: resp.StatusCode,
		Detail: parseDetail(body),
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		te.Err = ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		te.Err = ErrNotFound
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		te.Err = ErrInvalidRequest
	case resp.StatusCode == http.StatusTooManyRequests:
		te.Err = ErrRateLimited
		te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		te.Err = ErrServer
	default:
		te.Err = errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return te
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
