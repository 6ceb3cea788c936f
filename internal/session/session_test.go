package session

import (
	"fmt"
	"testing"

	"github.com/user/coinsight/internal/types"
)

func TestStoreGetOrCreate(t *testing.T) {
	st := NewStore(t.TempDir())

	id := types.NewConversationID("telegram", "42")
	s, err := st.GetOrCreate(id)
	if err != nil {
		t.Fatal(err)
	}
	if s.ConversationID != id {
		t.Errorf("expected id %s, got %s", id, s.ConversationID)
	}
	if s.ProcessorID == "" || s.ActivityID == "" {
		t.Error("expected generated processor/activity ids")
	}

	again, err := st.GetOrCreate(id)
	if err != nil {
		t.Fatal(err)
	}
	if again.ProcessorID != s.ProcessorID {
		t.Error("expected same session on repeat lookup")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)

	id := types.NewConversationID("telegram", "42")
	s, err := st.GetOrCreate(id)
	if err != nil {
		t.Fatal(err)
	}
	s.LastSubject = "bitcoin"
	s.LastIntent = types.IntentPrice
	if err := st.Put(s); err != nil {
		t.Fatal(err)
	}

	reopened := NewStore(dir)
	got, err := reopened.GetOrCreate(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSubject != "bitcoin" || got.LastIntent != types.IntentPrice {
		t.Errorf("state lost across reopen: %+v", got)
	}
}

func TestStoreReset(t *testing.T) {
	st := NewStore(t.TempDir())

	id := types.NewConversationID("telegram", "42")
	s, _ := st.GetOrCreate(id)
	s.LastSubject = "bitcoin"
	s.Remember("bitcoin price")
	if err := st.Put(s); err != nil {
		t.Fatal(err)
	}

	fresh, err := st.Reset(id)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.LastSubject != "" || len(fresh.History) != 0 {
		t.Errorf("reset did not clear state: %+v", fresh)
	}
}

func TestHistoryCap(t *testing.T) {
	s := newSession("c")
	for i := 0; i < 30; i++ {
		s.Remember(fmt.Sprintf("turn %d", i))
	}
	if len(s.History) != 20 {
		t.Fatalf("expected history capped at 20, got %d", len(s.History))
	}
	if s.History[0] != "turn 10" {
		t.Errorf("expected oldest evicted first, head is %q", s.History[0])
	}
	if s.History[19] != "turn 29" {
		t.Errorf("expected newest kept, tail is %q", s.History[19])
	}
}
