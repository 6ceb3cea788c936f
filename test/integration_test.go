//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/coinsight/internal/cache"
	"github.com/user/coinsight/internal/intent"
	"github.com/user/coinsight/internal/producer"
	"github.com/user/coinsight/internal/server"
	"github.com/user/coinsight/internal/session"
	"github.com/user/coinsight/internal/types"
	"github.com/user/coinsight/internal/wire"
)

type stubUpstream struct {
	priceCalls int
	newsCalls  int
}

func (s *stubUpstream) TokenPrice(ctx context.Context, id string) (*types.PricePayload, error) {
	s.priceCalls++
	return &types.PricePayload{Price: 65000, MarketCap: 1.2e12, Volume24h: 3.4e10}, nil
}

func (s *stubUpstream) News(ctx context.Context, query string) (*types.NewsPayload, error) {
	s.newsCalls++
	return &types.NewsPayload{Articles: []types.Article{
		{Title: "Bitcoin rallies", URL: "https://example.com/a"},
	}}, nil
}

func (s *stubUpstream) WalletInfo(ctx context.Context, address string) (*types.WalletPayload, error) {
	return &types.WalletPayload{Address: address}, nil
}

func (s *stubUpstream) TokenList(ctx context.Context) ([]types.TokenRef, error) {
	return []types.TokenRef{{ID: "bitcoin", Text: "Bitcoin (BTC)"}}, nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// TestEndToEnd runs the whole pipeline: a real sqlite cache, the producer,
// the HTTP server over a real socket, an SSE client, and the session engine
// consuming the frames.
func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()

	store, err := cache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	up := &stubUpstream{}
	resolver := intent.NewResolver(intent.DefaultIndex())
	prod := producer.New(resolver, store, up, up, up, up)

	ts := httptest.NewServer(server.NewServer(prod, up))
	defer ts.Close()

	engine := session.NewEngine(session.NewStore(dir))
	conv := types.NewConversationID("test", "user1")

	assist := func(prompt string) []types.Event {
		t.Helper()
		body := `{"query":{"prompt":` + jsonString(prompt) + `}}`
		resp, err := http.Post(ts.URL+"/assist", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		var events []types.Event
		reader := wire.NewFrameReader(resp.Body)
		for {
			frame, err := reader.Next()
			if err != nil {
				break
			}
			events = append(events, types.Event{
				Name: types.EventName(frame.Event),
				Data: json.RawMessage(frame.Data),
			})
		}
		return events
	}

	// First turn establishes context.
	s, err := engine.Store().GetOrCreate(conv)
	if err != nil {
		t.Fatal(err)
	}
	prompt := engine.Rewrite(s, "what is the price of bitcoin?")
	events := assist(prompt)
	if len(events) == 0 || events[0].Name != types.EventIntentRecognized {
		t.Fatalf("first event should be intent_recognized, got %+v", events)
	}
	if events[len(events)-1].Name != types.EventDone {
		t.Fatalf("last event should be done, got %s", events[len(events)-1].Name)
	}
	for _, ev := range events {
		if engine.Observe(s, ev) {
			if err := engine.Store().Put(s); err != nil {
				t.Fatal(err)
			}
		}
	}
	if s.LastSubject != "bitcoin" {
		t.Fatalf("session subject = %q, want bitcoin", s.LastSubject)
	}
	if up.priceCalls != 1 {
		t.Fatalf("price fetches = %d, want 1", up.priceCalls)
	}

	// Follow-up trigger phrase reuses the remembered subject and the cache.
	prompt = engine.Rewrite(s, "price")
	if !strings.Contains(prompt, "bitcoin") {
		t.Fatalf("rewrite should prefix remembered subject, got %q", prompt)
	}
	events = assist(prompt)
	var sawPrice bool
	for _, ev := range events {
		if ev.Name == types.EventPriceResult {
			sawPrice = true
		}
	}
	if !sawPrice {
		t.Fatal("follow-up should include price_result")
	}
	if up.priceCalls != 1 {
		t.Fatalf("price fetches = %d, want 1 (second read served from cache)", up.priceCalls)
	}

	// Session survives a store reopen.
	reopened, err := session.NewStore(dir).GetOrCreate(conv)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.LastSubject != "bitcoin" {
		t.Fatalf("persisted subject = %q, want bitcoin", reopened.LastSubject)
	}
}
