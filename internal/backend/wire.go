// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/rfpchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateConversationRequest is the body of POST .../conversations. Empty
// fields are omitted so the backend applies its defaults.
type CreateConversationRequest struct {
	Title      string `json:"title,omitempty"`
	SectionKey string `json:"section_key,omitempty"`
}

// SendMessageRequest is the body of POST .../messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// Timestamp decodes the backend's datetimes, which may lack a zone offset.
// Naive values are taken as UTC.
type Timestamp time.Time

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "timestamp")
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = Timestamp(v)
		return nil
	}
	for _, layout := range naiveLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = Timestamp(v)
			return nil
		}
	}
	return errors.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

// ConversationResponse is the backend's conversation representation.
type ConversationResponse struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Title      *string   `json:"title"`
	SectionKey *string   `json:"section_key"`
	CreatedAt  Timestamp `json:"created_at"`
}

// Model converts the response to a model.Conversation.
func (r ConversationResponse) Model() model.Conversation {
	c := model.Conversation{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		CreatedAt: time.Time(r.CreatedAt),
	}
	if r.Title != nil {
		c.Title = *r.Title
	}
	if r.SectionKey != nil {
		c.SectionKey = *r.SectionKey
	}
	return c
}

// MessageResponse is the backend's message representation.
type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      Timestamp `json:"created_at"`
}

// Model converts the response to a finalized model.Message.
func (r MessageResponse) Model() model.Message {
	return model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           model.Role(strings.ToLower(r.Role)),
		Content:        r.Content,
		CreatedAt:      time.Time(r.CreatedAt),
	}
}

// NewConversationResponse builds the wire form of c.
func NewConversationResponse(c model.Conversation) ConversationResponse {
	r := ConversationResponse{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		CreatedAt: Timestamp(c.CreatedAt),
	}
	if c.Title != "" {
		title := c.Title
		r.Title = &title
	}
	if c.SectionKey != "" {
		key := c.SectionKey
		r.SectionKey = &key
	}
	return r
}

// NewMessageResponse builds the wire form of m.
func NewMessageResponse(m model.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role.String(),
		Content:        m.Content,
		CreatedAt:      Timestamp(m.CreatedAt),
	}
}
