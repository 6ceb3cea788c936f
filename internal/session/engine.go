// internal/session/engine.go
package session

import (
	"encoding/json"
	"strings"

	"github.com/user/coinsight/internal/types"
)

// triggerPhrases are the vague follow-ups that get the remembered subject
// prefixed. The set is fixed; anything else passes through untouched.
var triggerPhrases = map[string]bool{
	"price":       true,
	"news":        true,
	"overview":    true,
	"now":         true,
	"price now":   true,
	"news now":    true,
	"check price": true,
	"check news":  true,
}

// Engine rewrites ambiguous turns using remembered context and updates that
// context from observed events.
type Engine struct {
	store *Store
}

// NewEngine creates an Engine over the given store.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// Store exposes the underlying session store.
func (e *Engine) Store() *Store { return e.store }

// Rewrite returns the effective query text for a turn. A trigger phrase in
// a contextual session gets the remembered subject prefixed; everything
// else is passed through unchanged.
func (e *Engine) Rewrite(s *Session, raw string) string {
	text := strings.TrimSpace(raw)
	if !s.Contextual() {
		return text
	}
	if triggerPhrases[strings.ToLower(text)] {
		return s.LastSubject + " " + text
	}
	return text
}

// Observe updates the session from one produced event and reports whether
// anything changed (callers persist on change). Only intent_recognized with
// a non-empty subject transitions the session to contextual.
func (e *Engine) Observe(s *Session, ev types.Event) bool {
	if ev.Name != types.EventIntentRecognized {
		return false
	}
	var payload types.IntentPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return false
	}

	if payload.Token == "" {
		return false
	}
	changed := false
	if payload.Token != s.LastSubject {
		s.LastSubject = payload.Token
		changed = true
	}
	if payload.Intent != s.LastIntent {
		s.LastIntent = payload.Intent
		changed = true
	}
	return changed
}
