// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the proposal workspace chat API.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rfpchat/internal/model"
	"github.com/jeranaias/rfpchat/internal/sse"
)

// Configuration constants for the chat API.
const (
	// APIPrefix is prepended to every endpoint path.
	APIPrefix = "/api/v1"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultIdleTimeout bounds the silence between stream chunks. It
	// matches the backend's own LLM call timeout.
	DefaultIdleTimeout = 90 * time.Second

	// DefaultRateLimit and DefaultRateBurst shape outgoing requests.
	DefaultRateLimit = 5.0
	DefaultRateBurst = 10

	// MaxResponseSize is the maximum allowed non-streaming response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "rfpchat/0.1.0"
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedHTTPClient = &http.Client{
		Transport: newTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat endpoints of one backend. It is safe for
// concurrent use; each call is independent.
type Client struct {
	baseURL string
	token   string

	httpClient   *http.Client
	streamClient *http.Client

	limiter     *rate.Limiter
	idleTimeout time.Duration

	log zerolog.Logger
}

// NewClient creates a client for the backend at baseURL
// (for example "http://localhost:8000").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		limiter:      rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
		idleTimeout:  DefaultIdleTimeout,
		log:          zerolog.Nop(),
	}
}

// WithToken sets the bearer token sent with every request.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// WithHTTPClient replaces both the request and the streaming HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithRequestTimeout bounds each non-streaming request. Streams are bounded
// by the idle timeout and the caller's context instead.
func (c *Client) WithRequestTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient = &http.Client{Transport: c.httpClient.Transport, Timeout: d}
	}
	return c
}

// WithRateLimit sets the request rate. A non-positive rps disables limiting.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithIdleTimeout sets how long a stream may go without bytes. Zero disables
// the timeout.
func (c *Client) WithIdleTimeout(d time.Duration) *Client {
	if d >= 0 {
		c.idleTimeout = d
	}
	return c
}

// WithLogger sets the logger. Requests are logged without headers or bodies.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.log = l.With().Str("component", "backend").Logger()
	return c
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IdleTimeout returns the configured stream idle timeout.
func (c *Client) IdleTimeout() time.Duration {
	return c.idleTimeout
}

// IsConfigured returns true if the client has a bearer token.
func (c *Client) IsConfigured() bool {
	return c.token != ""
}

// =============================================================================
// CONVERSATION ENDPOINTS
// =============================================================================

// CreateConversation creates a conversation in projectID.
func (c *Client) CreateConversation(ctx context.Context, projectID string, req CreateConversationRequest) (model.Conversation, error) {
	var resp ConversationResponse
	if err := c.doJSON(ctx, OpCreateConversation, http.MethodPost, conversationsPath(projectID), req, &resp); err != nil {
		return model.Conversation{}, err
	}
	return resp.Model(), nil
}

// ListConversations returns the project's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context, projectID string) ([]model.Conversation, error) {
	var resp []ConversationResponse
	if err := c.doJSON(ctx, OpListConversations, http.MethodGet, conversationsPath(projectID), nil, &resp); err != nil {
		return nil, err
	}
	convs := make([]model.Conversation, 0, len(resp))
	for _, r := range resp {
		convs = append(convs, r.Model())
	}
	return convs, nil
}

// ListMessages returns the finalized history of a conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, projectID, conversationID string) ([]model.Message, error) {
	var resp []MessageResponse
	if err := c.doJSON(ctx, OpListMessages, http.MethodGet, messagesPath(projectID, conversationID), nil, &resp); err != nil {
		return nil, err
	}
	msgs := make([]model.Message, 0, len(resp))
	for _, r := range resp {
		msgs = append(msgs, r.Model())
	}
	return msgs, nil
}

// SendMessage posts content to a conversation and returns the reply stream.
func (c *Client) SendMessage(ctx context.Context, projectID, conversationID, content string) (sse.ChunkSource, error) {
	r, err := c.OpenStream(ctx, messagesPath(projectID, conversationID), SendMessageRequest{Content: content})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func conversationsPath(projectID string) string {
	return APIPrefix + "/projects/" + url.PathEscape(projectID) + "/conversations"
}

func messagesPath(projectID, conversationID string) string {
	return conversationsPath(projectID) + "/" + url.PathEscape(conversationID) + "/messages"
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// newRequest builds an authenticated request with an optional JSON body.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// send waits for the rate limiter and performs req, logging method, path,
// status and duration only.
func (c *Client) send(op string, hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: op, Err: errors.Wrap(err, "rate limiter")}
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.log.Warn().Err(err).Str("op", op).Str("path", req.URL.Path).Msg("backend request failed")
		return nil, &TransportError{Op: op, Err: err}
	}

	c.log.Debug().
		Str("op", op).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request")
	return resp, nil
}

// doJSON performs a JSON request and decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(op, c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(op, resp, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "failed to decode response")}
	}
	return nil
}

// readResponse reads a response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if len(body) > MaxResponseSize {
		return nil, errors.Errorf("response exceeds %d bytes", MaxResponseSize)
	}
	return body, nil
}
