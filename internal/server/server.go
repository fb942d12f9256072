// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rfpchat/internal/backend"
	"github.com/jeranaias/rfpchat/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8000"

	// MaxRequestBodySize bounds JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024
)

// ============================================================================
// SERVER
// ============================================================================

// Server is a local stand-in for the proposal backend's chat API.
type Server struct {
	store     *Store
	responder Responder
	token     string
	log       zerolog.Logger

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server with an empty store and an EchoResponder.
func New() *Server {
	return &Server{
		store:     NewStore(),
		responder: EchoResponder{},
		log:       zerolog.Nop(),
	}
}

// WithToken requires this bearer token on every API request.
func (s *Server) WithToken(token string) *Server {
	s.token = token
	return s
}

// WithResponder sets the source of assistant replies.
func (s *Server) WithResponder(r Responder) *Server {
	s.responder = r
	return s
}

// WithLogger sets the request and lifecycle logger.
func (s *Server) WithLogger(l zerolog.Logger) *Server {
	s.log = l
	return s
}

// WithStore replaces the backing store. Call it before WithProject.
func (s *Server) WithStore(st *Store) *Server {
	s.store = st
	return s
}

// WithProject registers a project the API will serve.
func (s *Server) WithProject(id string) *Server {
	if err := s.store.AddProject(id); err != nil {
		s.log.Error().Err(err).Str("project_id", id).Msg("register project")
	}
	return s
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// ============================================================================
// ROUTES
// ============================================================================

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(s.log))
	r.Use(RecoveryMiddleware(s.log))

	r.Get("/health", s.handleHealth)

	r.Route(backend.APIPrefix+"/projects/{projectID}", func(api chi.Router) {
		api.Use(AuthMiddleware(s.token, s.log))
		api.Get("/conversations", s.handleListConversations)
		api.Post("/conversations", s.handleCreateConversation)
		api.Get("/conversations/{convID}/messages", s.handleListMessages)
		api.Post("/conversations/{convID}/messages", s.handleSendMessage)
	})
	return r
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListConversations handles GET .../conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathUUID(w, r, "projectID", "project_id")
	if !ok {
		return
	}
	convs, err := s.store.Conversations(pid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]backend.ConversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, backend.NewConversationResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateConversation handles POST .../conversations.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathUUID(w, r, "projectID", "project_id")
	if !ok {
		return
	}
	var req backend.CreateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	conv, err := s.store.CreateConversation(pid, req.Title, req.SectionKey)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.Debug().Str("conversation_id", conv.ID).Str("section_key", conv.SectionKey).Msg("conversation created")
	writeJSON(w, http.StatusCreated, backend.NewConversationResponse(conv))
}

// handleListMessages handles GET .../conversations/{convID}/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathUUID(w, r, "projectID", "project_id")
	if !ok {
		return
	}
	cid, ok := pathUUID(w, r, "convID", "conv_id")
	if !ok {
		return
	}
	msgs, err := s.store.Messages(pid, cid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]backend.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, backend.NewMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSendMessage handles POST .../conversations/{convID}/messages. The
// user message is stored before the reply streams; the assistant message
// is stored only once the reply completes.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathUUID(w, r, "projectID", "project_id")
	if !ok {
		return
	}
	cid, ok := pathUUID(w, r, "convID", "conv_id")
	if !ok {
		return
	}
	conv, err := s.store.Conversation(pid, cid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req backend.SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeValidation(w, []string{"body", "content"}, "String should have at least 1 character", "string_too_short")
		return
	}

	if _, err := s.store.AppendMessage(pid, cid, model.RoleUser, req.Content); err != nil {
		writeStoreError(w, err)
		return
	}
	history, err := s.store.Messages(pid, cid)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	log := s.log.With().Str("conversation_id", cid).Logger()

	var reply strings.Builder
	emit := func(token string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		reply.WriteString(token)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", token); err != nil {
			return errors.Wrap(err, "write token")
		}
		flusher.Flush()
		return nil
	}

	start := time.Now()
	if err := s.responder.Respond(ctx, ReplyRequest{Conversation: conv, History: history}, emit); err != nil {
		if ctx.Err() != nil {
			log.Info().Int("bytes", reply.Len()).Msg("client went away; reply discarded")
			return
		}
		log.Warn().Err(err).Msg("reply failed")
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
		return
	}

	text := reply.String()
	if _, err := s.store.AppendMessage(pid, cid, model.RoleAssistant, text); err != nil {
		log.Error().Err(err).Msg("store reply")
	}
	applied, err := s.store.ApplySectionUpdates(pid, model.SectionUpdates(text))
	if err != nil {
		log.Error().Err(err).Msg("store section update")
	}
	for _, v := range applied {
		log.Info().Str("section_key", v.Key).Int("version", v.Version).Msg("section updated")
	}

	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
	log.Debug().Int("bytes", len(text)).Dur("duration", time.Since(start)).Msg("reply complete")
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: replies stream for as long as the responder runs.
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("dev backend listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.log.Info().Msg("dev backend shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// validationIssue mirrors one entry of a FastAPI 422 detail list.
type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes a FastAPI-style {"detail": "..."} error.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, loc []string, msg, typ string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]validationIssue{
		"detail": {{Loc: loc, Msg: msg, Type: typ}},
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrConversationNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	default:
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// pathUUID reads a UUID path parameter, answering 422 if it is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, param, field string) (string, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeValidation(w, []string{"path", field}, "Input should be a valid UUID", "uuid_parsing")
		return "", false
	}
	return id.String(), true
}

// decodeBody decodes a JSON request body, answering 413 or 422 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return false
		}
		writeValidation(w, []string{"body"}, "JSON decode error", "json_invalid")
		return false
	}
	return true
}
