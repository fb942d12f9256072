// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/rfpchat/internal/model"
)

const testProject = "6f1c1f5e-0d3a-4a57-9b0e-9b5f5b0a8f11"

func newTestServer(r Responder) *Server {
	s := New().WithProject(testProject)
	if r != nil {
		s.WithResponder(r)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func convPath(pid string) string {
	return "/api/v1/projects/" + pid + "/conversations"
}

func msgPath(pid, cid string) string {
	return convPath(pid) + "/" + cid + "/messages"
}

func tokenResponder(tokens []string, err error) Responder {
	return ResponderFunc(func(ctx context.Context, req ReplyRequest, emit func(string) error) error {
		for _, tok := range tokens {
			if e := emit(tok); e != nil {
				return e
			}
		}
		return err
	})
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestHandleHealth(t *testing.T) {
	rec := do(t, newTestServer(nil).Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCreateConversation_DefaultTitle(t *testing.T) {
	h := newTestServer(nil).Handler()

	tests := []struct {
		body  string
		title string
	}{
		{`{}`, "Chat about proposal"},
		{`{"section_key":"technical_approach"}`, "Chat about technical_approach"},
		{`{"title":"Pricing","section_key":"cost"}`, "Pricing"},
	}

	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, convPath(testProject), tt.body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("%s: status = %d, want 201", tt.body, rec.Code)
		}
		var got struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Title != tt.title {
			t.Errorf("%s: title = %q, want %q", tt.body, got.Title, tt.title)
		}
		if got.ID == "" {
			t.Errorf("%s: empty id", tt.body)
		}
	}
}

func TestListConversations_NewestFirst(t *testing.T) {
	s := newTestServer(nil)
	first, _ := s.Store().CreateConversation(testProject, "first", "")
	second, _ := s.Store().CreateConversation(testProject, "second", "")

	rec := do(t, s.Handler(), http.MethodGet, convPath(testProject), "")
	var got []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("order = %+v, want [%s %s]", got, second.ID, first.ID)
	}
}

func TestUnknownProject(t *testing.T) {
	rec := do(t, newTestServer(nil).Handler(), http.MethodGet, convPath("0b8d3f4e-1111-4c2a-8e55-222222222222"), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"detail":"Project not found"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMalformedPathID(t *testing.T) {
	rec := do(t, newTestServer(nil).Handler(), http.MethodGet, convPath("not-a-uuid"), "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"uuid_parsing"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	h := newTestServer(nil).WithToken("s3cret").Handler()

	if rec := do(t, h, http.MethodGet, convPath(testProject), ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, convPath(testProject), "", "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, convPath(testProject), "", "Authorization", "Bearer s3cret"); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health needs no token: status = %d", rec.Code)
	}
}

func TestValidateBearerToken(t *testing.T) {
	tests := []struct {
		token, expected string
		want            bool
	}{
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"", "abc", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := ValidateBearerToken(tt.token, tt.expected); got != tt.want {
			t.Errorf("ValidateBearerToken(%q, %q) = %v, want %v", tt.token, tt.expected, got, tt.want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(ResponderFunc(func(context.Context, ReplyRequest, func(string) error) error {
		panic("boom")
	}))
	conv, _ := s.Store().CreateConversation(testProject, "", "")

	// The panic happens after the stream headers are out, so only the
	// missing done marker shows it.
	rec := do(t, s.Handler(), http.MethodPost, msgPath(testProject, conv.ID), `{"content":"hi"}`)
	if strings.Contains(rec.Body.String(), "event: done") {
		t.Errorf("body = %q, want no done marker", rec.Body.String())
	}
}

// =============================================================================
// SEND MESSAGE TESTS
// =============================================================================

func TestSendMessage_WireFormat(t *testing.T) {
	s := newTestServer(tokenResponder([]string{"Hel", "lo ", "there"}, nil))
	conv, _ := s.Store().CreateConversation(testProject, "", "")

	rec := do(t, s.Handler(), http.MethodPost, msgPath(testProject, conv.ID), `{"content":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	want := "data: Hel\n\ndata: lo \n\ndata: there\n\nevent: done\ndata: {}\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}

	msgs, _ := s.Store().Messages(testProject, conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hi" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Hello there" {
		t.Errorf("assistant message = %+v", msgs[1])
	}
}

func TestSendMessage_ResponderError(t *testing.T) {
	s := newTestServer(tokenResponder([]string{"par"}, errors.New("model overloaded")))
	conv, _ := s.Store().CreateConversation(testProject, "", "")

	rec := do(t, s.Handler(), http.MethodPost, msgPath(testProject, conv.ID), `{"content":"hi"}`)
	want := "data: par\n\nevent: error\ndata: model overloaded\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}

	msgs, _ := s.Store().Messages(testProject, conv.ID)
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("stored %+v, want only the user message", msgs)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	s := newTestServer(nil)
	conv, _ := s.Store().CreateConversation(testProject, "", "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, msgPath(testProject, conv.ID), `{"content":""}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty content: status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"loc":["body","content"]`) {
		t.Errorf("empty content: body = %q", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, msgPath(testProject, conv.ID), `{`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad json: status = %d, want 422", rec.Code)
	}

	rec = do(t, h, http.MethodPost, msgPath(testProject, "0b8d3f4e-1111-4c2a-8e55-222222222222"), `{"content":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown conversation: status = %d, want 404", rec.Code)
	}

	msgs, _ := s.Store().Messages(testProject, conv.ID)
	if len(msgs) != 0 {
		t.Errorf("rejected sends stored %d messages", len(msgs))
	}
}

func TestSendMessage_SectionUpdate(t *testing.T) {
	s := newTestServer(EchoResponder{})
	conv, _ := s.Store().CreateConversation(testProject, "", "staffing")

	do(t, s.Handler(), http.MethodPost, msgPath(testProject, conv.ID), `{"content":"Two engineers."}`)
	do(t, s.Handler(), http.MethodPost, msgPath(testProject, conv.ID), `{"content":"Three engineers."}`)

	v, ok := s.Store().Section(testProject, "staffing")
	if !ok {
		t.Fatal("section not stored")
	}
	if v.Version != 2 || v.Content != "Three engineers." {
		t.Errorf("section = %+v, want version 2 with latest content", v)
	}
}

func TestListMessages_OldestFirst(t *testing.T) {
	s := newTestServer(nil)
	conv, _ := s.Store().CreateConversation(testProject, "", "")
	s.Store().AppendMessage(testProject, conv.ID, "user", "one")
	s.Store().AppendMessage(testProject, conv.ID, "assistant", "two")

	rec := do(t, s.Handler(), http.MethodGet, msgPath(testProject, conv.ID), "")
	var got []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Content != "one" || got[1].Content != "two" {
		t.Errorf("messages = %+v", got)
	}
}

// =============================================================================
// RESPONDER TESTS
// =============================================================================

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"one two", []string{"one ", "two"}},
		{"a  b ", []string{"a  ", "b "}},
		{" lead", []string{" ", "lead"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if strings.Join(got, "") != tt.in {
			t.Errorf("Tokenize(%q) does not reassemble", tt.in)
		}
	}
}

func promptRequest(prompt string) ReplyRequest {
	return ReplyRequest{History: []model.Message{model.NewUserMessage("c1", prompt)}}
}

func TestEchoResponder(t *testing.T) {
	var got []string
	req := promptRequest("tighten this")
	req.Conversation.SectionKey = "summary"
	err := EchoResponder{}.Respond(context.Background(), req, func(tok string) error {
		got = append(got, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	want := `You said: tighten this <section_update key="summary">tighten this</section_update>`
	if strings.Join(got, "") != want {
		t.Errorf("reply = %q, want %q", strings.Join(got, ""), want)
	}
}

func TestEchoResponder_Fail(t *testing.T) {
	var got []string
	err := EchoResponder{}.Respond(context.Background(), promptRequest(FailPrefix+" please"), func(tok string) error {
		got = append(got, tok)
		return nil
	})
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(got) == 0 {
		t.Error("expected some tokens before the failure")
	}
}

func TestEchoResponder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := EchoResponder{Delay: time.Millisecond}.Respond(ctx, promptRequest("hi"), func(string) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
