// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/rfpchat/internal/model"
)

// ReplyRequest is what a Responder sees for one send.
type ReplyRequest struct {
	Conversation model.Conversation
	// History is the full transcript, ending with the new user message.
	History []model.Message
}

// Prompt returns the content of the newest user message.
func (r ReplyRequest) Prompt() string {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == model.RoleUser {
			return r.History[i].Content
		}
	}
	return ""
}

// Responder produces an assistant reply as a sequence of tokens. emit
// returns an error once the client has gone away; Respond should stop and
// return it.
type Responder interface {
	Respond(ctx context.Context, req ReplyRequest, emit func(token string) error) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req ReplyRequest, emit func(token string) error) error

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, req ReplyRequest, emit func(token string) error) error {
	return f(ctx, req, emit)
}

// FailPrefix makes EchoResponder fail partway through its reply.
const FailPrefix = "/fail"

// EchoResponder echoes the prompt back word by word. In a section-scoped
// conversation the prompt is also proposed as the section's new content.
type EchoResponder struct {
	// Delay is the pause before each token.
	Delay time.Duration
}

// Respond implements Responder.
func (e EchoResponder) Respond(ctx context.Context, req ReplyRequest, emit func(token string) error) error {
	prompt := req.Prompt()
	fail := strings.HasPrefix(prompt, FailPrefix)

	reply := "You said: " + prompt
	if key := req.Conversation.SectionKey; key != "" && !fail {
		reply += ` <section_update key="` + key + `">` + prompt + `</section_update>`
	}

	tokens := Tokenize(reply)
	for i, tok := range tokens {
		if fail && i == len(tokens)/2 {
			return errors.New("simulated model failure")
		}
		if e.Delay > 0 {
			t := time.NewTimer(e.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := emit(tok); err != nil {
			return err
		}
	}
	return nil
}

// Tokenize splits s into word tokens, each keeping its trailing spaces, so
// that concatenating the tokens reproduces s.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range s {
		isSpace := r == ' '
		if inSpace && !isSpace {
			tokens = append(tokens, s[start:i])
			start = i
		}
		inSpace = isSpace
	}
	return append(tokens, s[start:])
}
