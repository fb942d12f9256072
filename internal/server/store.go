// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jeranaias/rfpchat/internal/model"
)

var (
	// ErrProjectNotFound is returned for an unknown project.
	ErrProjectNotFound = errors.New("Project not found")
	// ErrConversationNotFound is returned for an unknown conversation or
	// one that belongs to another project.
	ErrConversationNotFound = errors.New("Conversation not found")
)

// SectionVersion is one stored revision of a proposal section.
type SectionVersion struct {
	Key       string
	Content   string
	Version   int
	CreatedAt time.Time
}

// Store holds projects, conversations, messages and section drafts in
// memory. A store opened with OpenStore also writes every change through to
// SQLite. It is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	projects      map[string]bool
	conversations map[string]model.Conversation
	order         map[string][]string // project ID -> conversation IDs, oldest first
	messages      map[string][]model.Message
	sections      map[string]map[string]SectionVersion // project ID -> key -> current

	db  *sql.DB // nil for a memory-only store
	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		projects:      make(map[string]bool),
		conversations: make(map[string]model.Conversation),
		order:         make(map[string][]string),
		messages:      make(map[string][]model.Message),
		sections:      make(map[string]map[string]SectionVersion),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AddProject registers a project ID. IDs are compared in lower case, the
// form path parameters are normalized to.
func (s *Store) AddProject(id string) error {
	id = strings.ToLower(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.exec(insertProject, id); err != nil {
		return err
	}
	s.projects[id] = true
	return nil
}

// HasProject reports whether id is registered.
func (s *Store) HasProject(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projects[id]
}

// CreateConversation adds a conversation to a project. An empty title gets
// the default title for sectionKey.
func (s *Store) CreateConversation(projectID, title, sectionKey string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.projects[projectID] {
		return model.Conversation{}, ErrProjectNotFound
	}
	if title == "" {
		title = model.DefaultTitle(sectionKey)
	}
	conv := model.Conversation{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Title:      title,
		SectionKey: sectionKey,
		CreatedAt:  s.now(),
	}
	if err := s.exec(insertConversation, conv.ID, conv.ProjectID, conv.Title, conv.SectionKey, conv.CreatedAt.UnixNano()); err != nil {
		return model.Conversation{}, err
	}
	s.conversations[conv.ID] = conv
	s.order[projectID] = append(s.order[projectID], conv.ID)
	return conv, nil
}

// Conversations lists a project's conversations, newest first.
func (s *Store) Conversations(projectID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.projects[projectID] {
		return nil, ErrProjectNotFound
	}
	ids := s.order[projectID]
	out := make([]model.Conversation, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.conversations[ids[i]])
	}
	return out, nil
}

// Conversation returns one conversation of a project.
func (s *Store) Conversation(projectID, convID string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationLocked(projectID, convID)
}

func (s *Store) conversationLocked(projectID, convID string) (model.Conversation, error) {
	if !s.projects[projectID] {
		return model.Conversation{}, ErrProjectNotFound
	}
	conv, ok := s.conversations[convID]
	if !ok || conv.ProjectID != projectID {
		return model.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// Messages lists a conversation's messages, oldest first.
func (s *Store) Messages(projectID, convID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.projects[projectID] {
		return nil, ErrProjectNotFound
	}
	// Unknown conversations list as empty, matching the API.
	return model.CloneMessages(s.messages[convID]), nil
}

// AppendMessage stores a new message in a conversation.
func (s *Store) AppendMessage(projectID, convID string, role model.Role, content string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conversationLocked(projectID, convID); err != nil {
		return model.Message{}, err
	}
	msg := model.NewMessage(convID, role, content)
	msg.CreatedAt = s.now()
	if err := s.exec(insertMessage, msg.ID, convID, string(role), content, msg.CreatedAt.UnixNano()); err != nil {
		return model.Message{}, err
	}
	s.messages[convID] = append(s.messages[convID], msg)
	return msg, nil
}

// ApplySectionUpdates stores each update as the new current version of its
// section.
func (s *Store) ApplySectionUpdates(projectID string, updates []model.SectionUpdate) ([]SectionVersion, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sections[projectID]
	if current == nil {
		current = make(map[string]SectionVersion)
		s.sections[projectID] = current
	}
	applied := make([]SectionVersion, 0, len(updates))
	for _, u := range updates {
		v := SectionVersion{
			Key:       u.Key,
			Content:   u.Content,
			Version:   current[u.Key].Version + 1,
			CreatedAt: s.now(),
		}
		if err := s.exec(insertSection, projectID, v.Key, v.Version, v.Content, v.CreatedAt.UnixNano()); err != nil {
			return applied, err
		}
		current[u.Key] = v
		applied = append(applied, v)
	}
	return applied, nil
}

// Section returns the current version of a section.
func (s *Store) Section(projectID, key string) (SectionVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.sections[projectID][key]
	return v, ok
}
