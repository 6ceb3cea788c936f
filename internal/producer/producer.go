// Package producer turns one user query into an ordered, finite sequence of
// typed events. Every sequence opens with intent_recognized and closes with
// done; sub-step failures degrade to a single error event and the sequence
// continues.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/coinsight/internal/cache"
	"github.com/user/coinsight/internal/intent"
	"github.com/user/coinsight/internal/types"
)

const defaultFetchTimeout = 15 * time.Second

// Producer orchestrates the resolver, cache store, and fetchers for one
// query at a time. It is safe for concurrent use; each Produce call owns
// its own sequence.
type Producer struct {
	resolver     *intent.Resolver
	store        types.CacheStore
	prices       types.PriceFetcher
	news         types.NewsFetcher
	wallets      types.WalletFetcher
	tokens       types.TokenLister
	fetchTimeout time.Duration
}

// New creates a Producer wired to the given collaborators.
func New(resolver *intent.Resolver, store types.CacheStore, prices types.PriceFetcher,
	news types.NewsFetcher, wallets types.WalletFetcher, tokens types.TokenLister) *Producer {
	return &Producer{
		resolver:     resolver,
		store:        store,
		prices:       prices,
		news:         news,
		wallets:      wallets,
		tokens:       tokens,
		fetchTimeout: defaultFetchTimeout,
	}
}

// Produce resolves the query (unless qctx already carries a resolved
// context) and streams its event sequence. The channel is closed after the
// terminal done event. Cancelling ctx stops further upstream calls; events
// already emitted stand.
func (p *Producer) Produce(ctx context.Context, text string, qctx *types.QueryContext) <-chan types.Event {
	out := make(chan types.Event)
	go func() {
		defer close(out)
		p.run(ctx, text, qctx, out)
	}()
	return out
}

func (p *Producer) run(ctx context.Context, text string, qctx *types.QueryContext, out chan<- types.Event) {
	emit := func(name types.EventName, payload any) bool {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("encode event payload", "event", string(name), "error", err)
			data = []byte(`{}`)
		}
		select {
		case out <- types.Event{Name: name, Data: data}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	emitError := func(msg string, kind types.ErrorKind) bool {
		return emit(types.EventError, types.ErrorPayload{Message: msg, Kind: kind})
	}
	done := func() {
		emit(types.EventDone, "Stream finished.")
	}

	if qctx == nil {
		resolved := p.resolver.Resolve(text)
		qctx = &resolved
	}

	if !emit(types.EventIntentRecognized, types.IntentPayload{Intent: qctx.Intent, Token: qctx.Subject}) {
		return
	}

	if qctx.Intent == types.IntentWallet && intent.IsWalletAddress(qctx.Subject) {
		addr := qctx.Subject
		if !emit(types.EventStatusUpdate, fmt.Sprintf("Fetching info for wallet %s...%s", addr[:6], addr[len(addr)-4:])) {
			return
		}
		info, err := p.fetchWallet(ctx, addr)
		if err != nil {
			if !emitError(err.Error(), types.ErrorKindUpstream) {
				return
			}
		} else if !emit(types.EventWalletResult, info) {
			return
		}
		done()
		return
	}

	if qctx.Intent == types.IntentList {
		if !emit(types.EventStatusUpdate, "Fetching full token list...") {
			return
		}
		list, err := p.fetchTokenList(ctx)
		if err != nil {
			if !emitError(err.Error(), types.ErrorKindUpstream) {
				return
			}
		} else if !emit(types.EventTokenListResult, types.TokenListPayload{Tokens: list}) {
			return
		}
		done()
		return
	}

	if qctx.Subject == "" {
		emitError("no subject identified", "")
		done()
		return
	}

	if qctx.Intent == types.IntentPrice || qctx.Intent == types.IntentOverview {
		if !emit(types.EventStatusUpdate, fmt.Sprintf("Fetching price for %s...", qctx.Subject)) {
			return
		}
		payload, err := p.smartLookup(ctx, types.CachePrice, qctx.Subject)
		if err != nil {
			if !emitError(err.Error(), errorKind(err)) {
				return
			}
		} else if !emitRaw(ctx, out, types.EventPriceResult, payload) {
			return
		}
	}

	if qctx.Intent == types.IntentNews || qctx.Intent == types.IntentOverview {
		if !emit(types.EventStatusUpdate, fmt.Sprintf("Fetching news for %s...", qctx.Subject)) {
			return
		}
		payload, err := p.smartLookup(ctx, types.CacheNews, qctx.Subject)
		if err != nil {
			if !emitError(err.Error(), errorKind(err)) {
				return
			}
		} else if !emitRaw(ctx, out, types.EventNewsResult, payload) {
			return
		}
	}

	done()
}

// emitRaw sends an already-encoded payload without re-marshalling it, so
// cached bytes flow through untouched.
func emitRaw(ctx context.Context, out chan<- types.Event, name types.EventName, data json.RawMessage) bool {
	select {
	case out <- types.Event{Name: name, Data: data}:
		return true
	case <-ctx.Done():
		return false
	}
}

// smartLookup is the cache-aside read path: serve fresh cached bytes, or
// fetch from the upstream and persist the result. An insert failure is a
// storage error even though the fetch succeeded.
func (p *Producer) smartLookup(ctx context.Context, category types.CacheCategory, key string) (json.RawMessage, error) {
	cached, err := p.store.Lookup(ctx, category, key)
	if err == nil {
		slog.Debug("cache hit", "category", string(category), "key", key)
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	slog.Debug("cache miss", "category", string(category), "key", key)
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	var payload json.RawMessage
	switch category {
	case types.CachePrice:
		price, err := p.prices.TokenPrice(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		payload, err = json.Marshal(price)
		if err != nil {
			return nil, err
		}
	case types.CacheNews:
		news, err := p.news.News(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		payload, err = json.Marshal(news)
		if err != nil {
			return nil, err
		}
	}

	if err := p.store.Insert(ctx, category, key, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *Producer) fetchWallet(ctx context.Context, address string) (*types.WalletPayload, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	return p.wallets.WalletInfo(fetchCtx, address)
}

func (p *Producer) fetchTokenList(ctx context.Context) ([]types.TokenRef, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	return p.tokens.TokenList(fetchCtx)
}

// errorKind classifies a sub-step failure for the error payload.
func errorKind(err error) types.ErrorKind {
	if errors.Is(err, cache.ErrStorage) {
		return types.ErrorKindStorage
	}
	return types.ErrorKindUpstream
}
