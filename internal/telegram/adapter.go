package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/coinsight/internal/session"
	"github.com/user/coinsight/internal/types"
	"github.com/user/coinsight/internal/wire"
)

const (
	maxTelegramMessage = 4096

	// editThrottle bounds how often an in-progress answer is re-edited.
	editThrottle = 700 * time.Millisecond

	// moreTokensPrefix is the callback-data prefix for token pagination.
	moreTokensPrefix = "more_tokens_"
)

// Adapter bridges Telegram chats to the event stream API. Each inbound
// message becomes one /assist call; the SSE frames drive a single Telegram
// message that is edited in place as results arrive.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	engine   *session.Engine
	agentURL string
	client   *http.Client
	queue    *Queue
}

// New creates a Telegram adapter speaking to the agent API at agentURL.
func New(token, agentURL string, engine *session.Engine, maxConcurrent int64) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:      bot,
		engine:   engine,
		agentURL: strings.TrimRight(agentURL, "/"),
		client:   &http.Client{},
		queue:    NewQueue(maxConcurrent),
	}, nil
}

// Start begins long-polling for Telegram updates. Blocks until ctx is done.
func (a *Adapter) Start(ctx context.Context) {
	a.queue.Start(ctx)
	a.queue.SetProcessor(a.handleTurn)
	defer a.queue.Stop()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			a.dispatch(ctx, update)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		turn := &Turn{
			ChatID:     update.CallbackQuery.Message.Chat.ID,
			Callback:   update.CallbackQuery.Data,
			CallbackID: update.CallbackQuery.ID,
			MessageID:  update.CallbackQuery.Message.MessageID,
		}
		if err := a.queue.Enqueue(turn); err != nil {
			slog.Warn("enqueue callback failed", "chat_id", turn.ChatID, "error", err)
		}
		return
	}

	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	turn := &Turn{ChatID: msg.Chat.ID, Text: msg.Text}
	if err := a.queue.Enqueue(turn); err != nil {
		slog.Warn("enqueue message failed", "chat_id", turn.ChatID, "error", err)
		a.send(turn.ChatID, "Too many pending requests, please wait a moment.")
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.send(chatID, "Hello! Ask me about crypto token prices, news, or a wallet address to get started.")

	case "reset":
		if _, err := a.engine.Store().Reset(conversationID(chatID)); err != nil {
			slog.Error("reset session failed", "chat_id", chatID, "error", err)
			a.send(chatID, "Could not reset the conversation.")
			return
		}
		a.send(chatID, "Conversation context cleared.")

	default:
		a.send(chatID, "Unknown command. Available: /start, /reset")
	}
}

// handleTurn processes one dequeued turn: a pagination callback answers from
// the session's cached token list; a message runs the full query pipeline.
func (a *Adapter) handleTurn(turn *Turn) error {
	if turn.Callback != "" {
		return a.handleCallback(turn)
	}
	return a.handleMessage(turn)
}

func (a *Adapter) handleMessage(turn *Turn) error {
	s, err := a.engine.Store().GetOrCreate(conversationID(turn.ChatID))
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	prompt := a.engine.Rewrite(s, turn.Text)
	s.Remember(turn.Text)
	if err := a.engine.Store().Put(s); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	statusID, err := a.send(turn.ChatID, "Processing: "+turn.Text)
	if err != nil {
		return fmt.Errorf("send status message: %w", err)
	}

	resp, err := a.postAssist(turn.Ctx, prompt, s)
	if err != nil {
		a.edit(turn.ChatID, statusID, "<b>Error:</b> the assistant is unreachable right now.", nil)
		return fmt.Errorf("assist request: %w", err)
	}
	defer resp.Body.Close()

	return a.streamToMessage(turn.ChatID, statusID, s, resp)
}

// streamToMessage folds SSE frames into one Telegram message, editing it in
// place. Edits are throttled; the final state is always flushed.
func (a *Adapter) streamToMessage(chatID int64, messageID int, s *session.Session, resp *http.Response) error {
	renderer := session.NewRenderer()
	reader := wire.NewFrameReader(resp.Body)
	var lastEdit time.Time

	for {
		frame, err := reader.Next()
		if err != nil {
			break
		}
		ev := types.Event{
			Name: types.EventName(frame.Event),
			Data: json.RawMessage(frame.Data),
		}

		changed := a.engine.Observe(s, ev)
		if renderer.Apply(s, ev) {
			changed = true
		}
		if changed {
			if err := a.engine.Store().Put(s); err != nil {
				slog.Warn("persist session failed", "conversation_id", string(s.ConversationID), "error", err)
			}
		}

		if renderer.Dirty() && time.Since(lastEdit) >= editThrottle {
			a.edit(chatID, messageID, renderer.Text(), a.pageKeyboard(s, renderer))
			renderer.MarkSent()
			lastEdit = time.Now()
		}
	}

	if renderer.Dirty() {
		a.edit(chatID, messageID, renderer.Text(), a.pageKeyboard(s, renderer))
		renderer.MarkSent()
	}
	return nil
}

func (a *Adapter) handleCallback(turn *Turn) error {
	// Acknowledge immediately so the button stops spinning.
	if _, err := a.bot.Request(tgbotapi.NewCallback(turn.CallbackID, "")); err != nil {
		slog.Warn("answer callback failed", "chat_id", turn.ChatID, "error", err)
	}

	start, ok := parseMoreTokens(turn.Callback)
	if !ok {
		return fmt.Errorf("unrecognized callback data %q", turn.Callback)
	}

	s, err := a.engine.Store().GetOrCreate(conversationID(turn.ChatID))
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	text, hasMore := session.NextPage(s, start)
	if err := a.engine.Store().Put(s); err != nil {
		slog.Warn("persist session failed", "conversation_id", string(s.ConversationID), "error", err)
	}

	// Re-render the paged message in place rather than posting a new one.
	var keyboard *tgbotapi.InlineKeyboardMarkup
	if hasMore {
		kb := moreTokensKeyboard(start + session.PageSize)
		keyboard = &kb
	}
	a.edit(turn.ChatID, turn.MessageID, text, keyboard)
	return nil
}

// postAssist issues the streaming request for one rewritten prompt.
func (a *Adapter) postAssist(ctx context.Context, prompt string, s *session.Session) (*http.Response, error) {
	body := map[string]any{
		"query": map[string]any{
			"id":     string(types.NewQueryID()),
			"prompt": prompt,
		},
		"session": map[string]any{
			"processor_id": string(s.ProcessorID),
			"activity_id":  string(s.ActivityID),
			"request_id":   string(types.NewRequestID()),
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.agentURL+"/assist", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("assist returned status %d", resp.StatusCode)
	}
	return resp, nil
}

// pageKeyboard returns the Show More keyboard when the renderer's token
// page has a next page.
func (a *Adapter) pageKeyboard(s *session.Session, r *session.Renderer) *tgbotapi.InlineKeyboardMarkup {
	if !r.ShowMore() {
		return nil
	}
	kb := moreTokensKeyboard(s.PageStart + session.PageSize)
	return &kb
}

func moreTokensKeyboard(nextStart int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Show More", moreTokensPrefix+strconv.Itoa(nextStart)),
		),
	)
}

// parseMoreTokens extracts the page cursor from pagination callback data.
func parseMoreTokens(data string) (int, bool) {
	after, ok := strings.CutPrefix(data, moreTokensPrefix)
	if !ok {
		return 0, false
	}
	start, err := strconv.Atoi(after)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

// send posts a new message, splitting it if it exceeds the Telegram limit.
// Returns the ID of the last message sent.
func (a *Adapter) send(chatID int64, text string) (int, error) {
	var lastID int
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		sent, err := a.bot.Send(msg)
		if err != nil {
			// Retry without HTML if the markup fails to parse
			msg.ParseMode = ""
			sent, err = a.bot.Send(msg)
			if err != nil {
				return 0, fmt.Errorf("send message: %w", err)
			}
		}
		lastID = sent.MessageID
	}
	return lastID, nil
}

func (a *Adapter) edit(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if len(text) > maxTelegramMessage {
		text = text[:maxTelegramMessage]
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = keyboard
	if _, err := a.bot.Send(edit); err != nil {
		edit.ParseMode = ""
		if _, err := a.bot.Send(edit); err != nil {
			slog.Warn("edit message failed", "chat_id", chatID, "error", err)
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func conversationID(chatID int64) types.ConversationID {
	return types.NewConversationID("telegram", strconv.FormatInt(chatID, 10))
}
