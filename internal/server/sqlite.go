// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rfpchat/internal/model"
)

// SQLite schema for a persistent store. Rows are only ever inserted; the
// in-memory maps remain the read path.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id),
    title TEXT NOT NULL,
    section_key TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL  -- Unix nanoseconds
);

CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_id);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

CREATE TABLE IF NOT EXISTS section_versions (
    project_id TEXT NOT NULL REFERENCES projects(id),
    key TEXT NOT NULL,
    version INTEGER NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (project_id, key, version)
) WITHOUT ROWID;
`

const (
	insertProject      = `INSERT OR IGNORE INTO projects (id) VALUES (?)`
	insertConversation = `INSERT INTO conversations (id, project_id, title, section_key, created_at) VALUES (?, ?, ?, ?, ?)`
	insertMessage      = `INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	insertSection      = `INSERT INTO section_versions (project_id, key, version, content, created_at) VALUES (?, ?, ?, ?, ?)`
)

// OpenStore opens or creates a SQLite database at path and loads its
// contents into a new Store.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to set pragma")
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	s := NewStore()
	if err := s.load(db); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

// Close releases the database of a persistent store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// exec runs a write against the database, if any. Callers hold s.mu.
func (s *Store) exec(query string, args ...any) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(query, args...)
	return errors.Wrap(err, "store write")
}

func (s *Store) load(db *sql.DB) error {
	if err := queryRows(db, `SELECT id FROM projects`, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		s.projects[id] = true
		return nil
	}); err != nil {
		return errors.Wrap(err, "load projects")
	}

	if err := queryRows(db, `SELECT id, project_id, title, section_key, created_at FROM conversations ORDER BY rowid`, func(rows *sql.Rows) error {
		var c model.Conversation
		var created int64
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Title, &c.SectionKey, &created); err != nil {
			return err
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		s.conversations[c.ID] = c
		s.order[c.ProjectID] = append(s.order[c.ProjectID], c.ID)
		return nil
	}); err != nil {
		return errors.Wrap(err, "load conversations")
	}

	if err := queryRows(db, `SELECT id, conversation_id, role, content, created_at FROM messages ORDER BY seq`, func(rows *sql.Rows) error {
		var m model.Message
		var role string
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &created); err != nil {
			return err
		}
		m.Role = model.Role(role)
		m.CreatedAt = time.Unix(0, created).UTC()
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
		return nil
	}); err != nil {
		return errors.Wrap(err, "load messages")
	}

	// Ascending versions, so the last row per key is current.
	if err := queryRows(db, `SELECT project_id, key, version, content, created_at FROM section_versions ORDER BY version`, func(rows *sql.Rows) error {
		var projectID string
		var v SectionVersion
		var created int64
		if err := rows.Scan(&projectID, &v.Key, &v.Version, &v.Content, &created); err != nil {
			return err
		}
		v.CreatedAt = time.Unix(0, created).UTC()
		if s.sections[projectID] == nil {
			s.sections[projectID] = make(map[string]SectionVersion)
		}
		s.sections[projectID][v.Key] = v
		return nil
	}); err != nil {
		return errors.Wrap(err, "load sections")
	}
	return nil
}

func queryRows(db *sql.DB, query string, scan func(*sql.Rows) error) error {
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
