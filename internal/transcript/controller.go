// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rfpchat/internal/backend"
	"github.com/jeranaias/rfpchat/internal/model"
	"github.com/jeranaias/rfpchat/internal/sse"
)

// Backend is the collaborator that owns conversations and produces replies.
// *backend.Client implements it.
type Backend interface {
	CreateConversation(ctx context.Context, projectID string, req backend.CreateConversationRequest) (model.Conversation, error)
	ListMessages(ctx context.Context, projectID, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, projectID, conversationID, content string) (sse.ChunkSource, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l.With().Str("component", "transcript").Logger()
	}
}

// WithStreamOptions configures the decoder of every stream.
func WithStreamOptions(opts ...sse.Option) Option {
	return func(c *Controller) {
		c.streamOpts = append(c.streamOpts, opts...)
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller keeps the transcripts of one project's conversations consistent
// with the replies streaming into them.
//
// Each conversation is Idle or Streaming. Send is rejected while Streaming.
// Different conversations stream independently. All methods are safe for
// concurrent use.
type Controller struct {
	backend    Backend
	projectID  string
	streamOpts []sse.Option
	log        zerolog.Logger

	mu     sync.Mutex
	convs  map[string]*conversation
	order  []string
	active string
}

// conversation is the controller's state for one conversation.
type conversation struct {
	meta     model.Conversation
	messages []model.Message
	session  *session
	err      error
	subs     map[*subscriber]struct{}
}

// session is one send/receive cycle. It is owned by the goroutine running
// Send; the controller only ever ends it under c.mu.
type session struct {
	id      string
	pending *model.Pending
	cancel  context.CancelCauseFunc
}

// New creates a controller for projectID.
func New(b Backend, projectID string, opts ...Option) *Controller {
	c := &Controller{
		backend:   b,
		projectID: projectID,
		log:       zerolog.Nop(),
		convs:     make(map[string]*conversation),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProjectID returns the project the controller serves.
func (c *Controller) ProjectID() string {
	return c.projectID
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// NewConversation creates a conversation with the backend, registers it and
// makes it active. Empty arguments take the backend's defaults. Any session
// streaming into the previously active conversation is cancelled first.
func (c *Controller) NewConversation(ctx context.Context, sectionKey, title string) (model.Conversation, error) {
	conv, err := c.backend.CreateConversation(ctx, c.projectID, backend.CreateConversationRequest{
		Title:      title,
		SectionKey: sectionKey,
	})
	if err != nil {
		return model.Conversation{}, errors.Wrap(err, "create conversation")
	}
	if conv.ProjectID == "" {
		conv.ProjectID = c.projectID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.registerLocked(conv)
	st.meta = conv
	c.activateLocked(conv.ID)

	c.log.Info().Str("conversation_id", conv.ID).Str("section_key", conv.SectionKey).Msg("conversation created")
	return conv, nil
}

// Open loads the finalized history of an existing conversation from the
// backend, replacing any local copy, and makes it active. Opening a
// conversation that is streaming is rejected with ErrSendInProgress.
func (c *Controller) Open(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	if st, ok := c.convs[conversationID]; ok && st.session != nil {
		c.mu.Unlock()
		return ErrSendInProgress
	}
	c.mu.Unlock()

	msgs, err := c.backend.ListMessages(ctx, c.projectID, conversationID)
	if err != nil {
		return errors.Wrap(err, "load history")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.registerLocked(model.Conversation{ID: conversationID, ProjectID: c.projectID})
	if st.session != nil {
		// A send started while the history was loading.
		return ErrSendInProgress
	}
	st.messages = msgs
	st.err = nil
	c.activateLocked(conversationID)
	c.publishLocked(st)

	c.log.Debug().Str("conversation_id", conversationID).Int("messages", len(msgs)).Msg("conversation opened")
	return nil
}

// Track registers a conversation known from elsewhere, such as a backend
// listing, without loading its history. Metadata of a tracked conversation
// is refreshed.
func (c *Controller) Track(conv model.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.registerLocked(conv)
	st.meta = conv
}

// Activate makes conversationID the active conversation. A session
// streaming into the previously active conversation is cancelled and
// resolved before the switch.
func (c *Controller) Activate(conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.convs[conversationID]; !ok {
		return ErrUnknownConversation
	}
	c.activateLocked(conversationID)
	return nil
}

// Active returns the active conversation ID, or "" when none.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Conversations returns the registered conversations in registration order.
func (c *Controller) Conversations() []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Conversation, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.convs[id].meta)
	}
	return out
}

func (c *Controller) registerLocked(conv model.Conversation) *conversation {
	if st, ok := c.convs[conv.ID]; ok {
		return st
	}
	st := &conversation{
		meta: conv,
		subs: make(map[*subscriber]struct{}),
	}
	c.convs[conv.ID] = st
	c.order = append(c.order, conv.ID)
	return st
}

func (c *Controller) activateLocked(conversationID string) {
	if c.active != "" && c.active != conversationID {
		if prev, ok := c.convs[c.active]; ok && prev.session != nil {
			c.log.Debug().Str("conversation_id", c.active).Msg("cancelling stream on switch")
			c.cancelLocked(prev)
		}
	}
	c.active = conversationID
}

// =============================================================================
// SEND
// =============================================================================

// Send appends text as a user message and streams the assistant reply into
// the conversation. It blocks for the lifetime of the session.
//
// Send returns ErrSendInProgress without touching the transcript when a
// reply is already streaming. A failed reply is discarded and recorded in
// the view; Send returns the same *StreamError. A cancelled reply returns
// ErrCancelled, or ctx's error when ctx ended the session.
func (c *Controller) Send(ctx context.Context, conversationID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	st, ok := c.convs[conversationID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownConversation
	}
	if st.session != nil {
		c.mu.Unlock()
		return ErrSendInProgress
	}

	sessCtx, cancel := context.WithCancelCause(ctx)
	s := &session{
		id:      uuid.NewString(),
		pending: model.NewPending(conversationID),
		cancel:  cancel,
	}
	st.messages = append(st.messages, model.NewUserMessage(conversationID, text))
	st.err = nil
	st.session = s
	c.publishLocked(st)
	c.mu.Unlock()
	defer cancel(nil)

	log := c.log.With().Str("conversation_id", conversationID).Str("session_id", s.id).Logger()
	log.Debug().Int("length", len(text)).Msg("send")

	src, err := c.backend.SendMessage(sessCtx, c.projectID, conversationID, text)
	if err != nil {
		if sessCtx.Err() != nil {
			return c.abandon(st, s, sessCtx)
		}
		return c.fail(st, s, err, log)
	}

	stream := sse.NewStream(src, c.streamOpts...)
	defer stream.Close()

	for {
		f, ok := stream.Next(sessCtx)
		if !ok {
			break
		}

		switch f.Kind {
		case sse.FrameData:
			if !c.appendFragment(st, s, f.Payload) {
				return c.abandon(st, s, sessCtx)
			}
		case sse.FrameDone:
			return c.complete(st, s, log)
		case sse.FrameError:
			cause := stream.Err()
			if cause == nil {
				cause = &backend.TransportError{Op: backend.OpReadStream, Detail: f.Payload, Err: backend.ErrStreamFailed}
			}
			return c.fail(st, s, cause, log)
		}
	}

	if stream.Err() != nil {
		// Only cancellation ends a stream without a terminal frame.
		return c.abandon(st, s, sessCtx)
	}
	// End-of-stream without a marker is an implicit success.
	return c.complete(st, s, log)
}

// appendFragment folds one Data payload into the pending message. It
// reports false when the session has already been ended by Cancel.
func (c *Controller) appendFragment(st *conversation, s *session, payload string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st.session != s {
		return false
	}
	if err := s.pending.AppendToken(payload); err != nil {
		return false
	}
	c.publishLocked(st)
	return true
}

// complete commits the pending message in place.
func (c *Controller) complete(st *conversation, s *session, log zerolog.Logger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st.session != s {
		return ErrCancelled
	}
	msg := s.pending.Finalize()
	st.messages = append(st.messages, msg)
	st.session = nil
	c.publishLocked(st)

	log.Info().
		Int("fragments", msg.FragmentCount).
		Int("length", len(msg.Content)).
		Dur("ttft", msg.TTFT).
		Dur("duration", msg.TotalDuration).
		Msg("reply complete")
	return nil
}

// fail discards the pending message and records a recoverable error.
func (c *Controller) fail(st *conversation, s *session, cause error, log zerolog.Logger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st.session != s {
		return ErrCancelled
	}
	err := &StreamError{
		ConversationID: st.meta.ID,
		Partial:        s.pending.Len(),
		Err:            cause,
	}
	st.err = err
	st.session = nil
	c.publishLocked(st)

	log.Warn().Err(cause).Int("discarded", err.Partial).Msg("reply failed")
	return err
}

// abandon resolves a session whose context ended. If Cancel already
// resolved it there is nothing left to do.
func (c *Controller) abandon(st *conversation, s *session, sessCtx context.Context) error {
	c.mu.Lock()
	if st.session == s {
		c.cancelLocked(st)
	}
	c.mu.Unlock()

	if cause := context.Cause(sessCtx); cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	if err := sessCtx.Err(); err != nil {
		return err
	}
	return ErrCancelled
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel abandons the session streaming into conversationID, if any, and
// reports whether there was one. The connection is released; the backend is
// not notified. Partial content is kept as an interrupted message; an empty
// pending message is dropped.
func (c *Controller) Cancel(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.convs[conversationID]
	if !ok || st.session == nil {
		return false
	}
	c.cancelLocked(st)
	return true
}

// Shutdown cancels every streaming session.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.order {
		if st := c.convs[id]; st.session != nil {
			c.cancelLocked(st)
		}
	}
}

func (c *Controller) cancelLocked(st *conversation) {
	s := st.session
	s.cancel(ErrCancelled)
	if msg, ok := s.pending.Interrupt(); ok {
		st.messages = append(st.messages, msg)
	}
	st.session = nil
	c.publishLocked(st)

	c.log.Info().Str("conversation_id", st.meta.ID).Str("session_id", s.id).Msg("stream cancelled")
}

// =============================================================================
// OBSERVATION
// =============================================================================

// Subscribe returns the current view of conversationID and a channel of
// later views. The channel is latest-wins: a slow reader sees the newest
// view, possibly skipping intermediate ones. Call the returned func to
// unsubscribe; it closes the channel.
//
// Subscribing to an unknown conversation returns an empty view and a closed
// channel.
func (c *Controller) Subscribe(conversationID string) (View, <-chan View, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.convs[conversationID]
	if !ok {
		ch := make(chan View)
		close(ch)
		return View{ConversationID: conversationID}, ch, func() {}
	}

	sub := newSubscriber()
	st.subs[sub] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(st.subs, sub)
			sub.close()
		})
	}
	return c.viewLocked(st), sub.ch, unsubscribe
}

// Snapshot returns the current view of conversationID.
func (c *Controller) Snapshot(conversationID string) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.convs[conversationID]
	if !ok {
		return View{ConversationID: conversationID}
	}
	return c.viewLocked(st)
}

// State returns Idle or Streaming for conversationID.
func (c *Controller) State(conversationID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.convs[conversationID]; ok && st.session != nil {
		return Streaming
	}
	return Idle
}

func (c *Controller) viewLocked(st *conversation) View {
	n := len(st.messages)
	if st.session != nil {
		n++
	}
	msgs := make([]model.Message, 0, n)
	msgs = append(msgs, st.messages...)
	if st.session != nil {
		msgs = append(msgs, st.session.pending.Snapshot())
	}
	return View{
		ConversationID: st.meta.ID,
		Conversation:   st.meta,
		Messages:       msgs,
		Streaming:      st.session != nil,
		Err:            st.err,
	}
}

func (c *Controller) publishLocked(st *conversation) {
	if len(st.subs) == 0 {
		return
	}
	v := c.viewLocked(st)
	for sub := range st.subs {
		sub.offer(v)
	}
}
