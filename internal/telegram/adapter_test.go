package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestConversationID(t *testing.T) {
	id := conversationID(67890)
	if string(id) != "telegram:67890" {
		t.Errorf("expected 'telegram:67890', got %q", id)
	}
}

func TestParseMoreTokens(t *testing.T) {
	tests := []struct {
		data  string
		start int
		ok    bool
	}{
		{"more_tokens_20", 20, true},
		{"more_tokens_0", 0, true},
		{"more_tokens_", 0, false},
		{"more_tokens_-5", 0, false},
		{"more_tokens_abc", 0, false},
		{"other_callback", 0, false},
	}
	for _, tt := range tests {
		start, ok := parseMoreTokens(tt.data)
		if ok != tt.ok || start != tt.start {
			t.Errorf("parseMoreTokens(%q) = (%d, %v), want (%d, %v)", tt.data, start, ok, tt.start, tt.ok)
		}
	}
}

func TestDispatchCallbackCarriesMessageID(t *testing.T) {
	a := &Adapter{queue: NewQueue(1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.queue.Start(ctx)
	defer a.queue.Stop()

	got := make(chan *Turn, 1)
	a.queue.SetProcessor(func(turn *Turn) error {
		got <- turn
		return nil
	})

	update := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb1",
			Data: "more_tokens_20",
			Message: &tgbotapi.Message{
				MessageID: 42,
				Chat:      &tgbotapi.Chat{ID: 123},
			},
		},
	}
	a.dispatch(ctx, update)

	select {
	case turn := <-got:
		// The page edit targets the original list message.
		if turn.MessageID != 42 {
			t.Errorf("MessageID = %d, want 42", turn.MessageID)
		}
		if turn.ChatID != 123 || turn.Callback != "more_tokens_20" {
			t.Errorf("unexpected turn: %+v", turn)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback turn was never processed")
	}
}

func TestMoreTokensKeyboard(t *testing.T) {
	kb := moreTokensKeyboard(40)
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 1 {
		t.Fatalf("unexpected keyboard shape: %+v", kb.InlineKeyboard)
	}
	btn := kb.InlineKeyboard[0][0]
	if btn.CallbackData == nil || *btn.CallbackData != "more_tokens_40" {
		t.Errorf("callback data = %v, want more_tokens_40", btn.CallbackData)
	}
}
