// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rfpchat/internal/backend"
	"github.com/jeranaias/rfpchat/internal/model"
	"github.com/jeranaias/rfpchat/internal/server"
	"github.com/jeranaias/rfpchat/internal/sse"
	"github.com/jeranaias/rfpchat/internal/transcript"
)

const (
	e2eProject = "6f1c1f5e-0d3a-4a57-9b0e-9b5f5b0a8f11"
	e2eToken   = "dev-token"
)

type e2e struct {
	srv    *server.Server
	client *backend.Client
	ctrl   *transcript.Controller
}

func newE2E(t *testing.T, r server.Responder) *e2e {
	t.Helper()
	srv := server.New().WithProject(e2eProject).WithToken(e2eToken).WithResponder(r)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := backend.NewClient(ts.URL).WithToken(e2eToken).WithRateLimit(0, 0).WithIdleTimeout(5 * time.Second)
	ctrl := transcript.New(client, e2eProject, transcript.WithStreamOptions(sse.WithErrorEvents()))
	t.Cleanup(ctrl.Shutdown)
	return &e2e{srv: srv, client: client, ctrl: ctrl}
}

func TestEndToEnd_ReplyMatchesReload(t *testing.T) {
	env := newE2E(t, server.EchoResponder{})
	ctx := context.Background()

	conv, err := env.ctrl.NewConversation(ctx, "staffing", "")
	require.NoError(t, err)
	assert.Equal(t, "Chat about staffing", conv.Title)

	require.NoError(t, env.ctrl.Send(ctx, conv.ID, "Two senior engineers."))

	view := env.ctrl.Snapshot(conv.ID)
	require.Len(t, view.Messages, 2)
	reply := view.Messages[1]
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, `You said: Two senior engineers. <section_update key="staffing">Two senior engineers.</section_update>`, reply.Content)
	assert.Equal(t, []model.SectionUpdate{{Key: "staffing", Content: "Two senior engineers."}}, model.SectionUpdates(reply.Content))
	assert.False(t, view.Streaming)
	assert.NoError(t, view.Err)

	// The live transcript agrees with what the backend persisted.
	reloaded, err := env.client.ListMessages(ctx, e2eProject, conv.ID)
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	for i := range reloaded {
		assert.Equal(t, view.Messages[i].Role, reloaded[i].Role)
		assert.Equal(t, view.Messages[i].Content, reloaded[i].Content)
	}

	section, ok := env.srv.Store().Section(e2eProject, "staffing")
	require.True(t, ok)
	assert.Equal(t, 1, section.Version)
}

func TestEndToEnd_BackendErrorEvent(t *testing.T) {
	env := newE2E(t, server.EchoResponder{})
	ctx := context.Background()

	conv, err := env.ctrl.NewConversation(ctx, "", "")
	require.NoError(t, err)

	err = env.ctrl.Send(ctx, conv.ID, server.FailPrefix+" this one")
	var streamErr *transcript.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Positive(t, streamErr.Partial)

	var terr *backend.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "simulated model failure", terr.Detail)

	view := env.ctrl.Snapshot(conv.ID)
	require.Len(t, view.Messages, 1, "partial reply is discarded")
	assert.Equal(t, model.RoleUser, view.Messages[0].Role)
	assert.Error(t, view.Err)

	stored, err := env.client.ListMessages(ctx, e2eProject, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "backend keeps only the user message")
}

func TestEndToEnd_CancelKeepsPartial(t *testing.T) {
	env := newE2E(t, server.EchoResponder{Delay: 40 * time.Millisecond})
	ctx := context.Background()

	conv, err := env.ctrl.NewConversation(ctx, "", "")
	require.NoError(t, err)

	_, updates, unsubscribe := env.ctrl.Subscribe(conv.ID)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- env.ctrl.Send(ctx, conv.ID, "a fairly long prompt to echo back slowly") }()

	deadline := time.After(5 * time.Second)
	for waiting := true; waiting; {
		select {
		case v := <-updates:
			if p, ok := v.Pending(); ok && p.Content != "" {
				waiting = false
			}
		case <-deadline:
			t.Fatal("no fragment arrived")
		}
	}

	require.True(t, env.ctrl.Cancel(conv.ID))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, transcript.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Cancel")
	}

	view := env.ctrl.Snapshot(conv.ID)
	require.Len(t, view.Messages, 2)
	last := view.Messages[1]
	assert.True(t, last.Interrupted)
	assert.True(t, strings.HasPrefix(last.Content, "You "))
	assert.Equal(t, transcript.Idle, view.State())
}

func TestEndToEnd_Unauthorized(t *testing.T) {
	env := newE2E(t, server.EchoResponder{})
	client := env.client.WithToken("wrong")
	ctrl := transcript.New(client, e2eProject)

	_, err := ctrl.NewConversation(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrUnauthorized), "got %v", err)
}
