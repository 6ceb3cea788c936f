// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewQueryID(t *testing.T) {
	id := NewQueryID()
	if id == "" {
		t.Error("expected non-empty QueryID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestConversationIDFormat(t *testing.T) {
	id := NewConversationID("telegram", "123", "456")
	expected := ConversationID("telegram:123:456")
	if id != expected {
		t.Errorf("expected %s, got %s", expected, id)
	}
}
