// Package session holds per-conversation memory: the remembered subject and
// intent used to rewrite vague follow-ups, a short history of user turns,
// and the pagination state for token listings.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/coinsight/internal/types"
)

// historyCap bounds the stored user-turn history; oldest entries evict first.
const historyCap = 20

// Session is one conversation's remembered state. It is mutated on every
// turn and persisted after each mutation.
type Session struct {
	ConversationID types.ConversationID `json:"conversation_id"`
	ProcessorID    types.ProcessorID    `json:"processor_id"`
	ActivityID     types.ActivityID     `json:"activity_id"`
	LastSubject    string               `json:"last_subject,omitempty"`
	LastIntent     types.Intent         `json:"last_intent,omitempty"`
	History        []string             `json:"history,omitempty"`
	PageStart      int                  `json:"page_start"`
	TokenList      []types.TokenRef     `json:"token_list,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// newSession creates a fresh session for the conversation.
func newSession(id types.ConversationID) *Session {
	now := time.Now()
	return &Session{
		ConversationID: id,
		ProcessorID:    types.NewProcessorID(),
		ActivityID:     types.NewActivityID(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Contextual reports whether the session remembers a subject.
func (s *Session) Contextual() bool {
	return s.LastSubject != ""
}

// Remember appends a raw user turn, evicting the oldest beyond the cap.
func (s *Session) Remember(text string) {
	s.History = append(s.History, text)
	if len(s.History) > historyCap {
		s.History = s.History[len(s.History)-historyCap:]
	}
}

// Store is a JSON-file-backed session store. The whole file is rewritten
// atomically after each mutating turn; last writer wins.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a Store persisting to sessions.json under dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, "sessions.json")}
}

func (st *Store) load() (map[types.ConversationID]*Session, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.ConversationID]*Session), nil
		}
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	var sessions []*Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal sessions: %w", err)
	}

	index := make(map[types.ConversationID]*Session, len(sessions))
	for _, s := range sessions {
		index[s.ConversationID] = s
	}
	return index, nil
}

func (st *Store) save(index map[types.ConversationID]*Session) error {
	sessions := make([]*Session, 0, len(index))
	for _, s := range index {
		sessions = append(sessions, s)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	// Atomic write: write to temp file then rename.
	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp sessions: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp sessions: %w", err)
	}
	return nil
}

// GetOrCreate returns the session for the conversation, creating and
// persisting a fresh one on first contact.
func (st *Store) GetOrCreate(id types.ConversationID) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	index, err := st.load()
	if err != nil {
		return nil, err
	}
	if existing, ok := index[id]; ok {
		return existing, nil
	}

	s := newSession(id)
	index[id] = s
	if err := st.save(index); err != nil {
		return nil, err
	}
	return s, nil
}

// Put persists changes to the given session, setting UpdatedAt to now.
func (st *Store) Put(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	index, err := st.load()
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	index[s.ConversationID] = s
	return st.save(index)
}

// Reset replaces the conversation's state with a fresh session.
func (st *Store) Reset(id types.ConversationID) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	index, err := st.load()
	if err != nil {
		return nil, err
	}
	s := newSession(id)
	index[id] = s
	if err := st.save(index); err != nil {
		return nil, err
	}
	return s, nil
}

// List returns all persisted sessions.
func (st *Store) List() ([]*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	index, err := st.load()
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(index))
	for _, s := range index {
		sessions = append(sessions, s)
	}
	return sessions, nil
}
