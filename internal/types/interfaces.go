// internal/types/interfaces.go
package types

import (
	"context"
	"encoding/json"
)

// CacheCategory selects which freshness window and table a lookup uses.
type CacheCategory string

const (
	CachePrice CacheCategory = "price"
	CacheNews  CacheCategory = "news"
)

// CacheStore is a time-boxed cache-aside store keyed by (category, key).
// Lookup returns the newest fresh payload or a miss error; stale and absent
// entries are indistinguishable to callers. Insert appends, never overwrites.
type CacheStore interface {
	Lookup(ctx context.Context, category CacheCategory, key string) (json.RawMessage, error)
	Insert(ctx context.Context, category CacheCategory, key string, payload json.RawMessage) error
}

type PriceFetcher interface {
	TokenPrice(ctx context.Context, tokenID string) (*PricePayload, error)
}

type NewsFetcher interface {
	News(ctx context.Context, query string) (*NewsPayload, error)
}

type WalletFetcher interface {
	WalletInfo(ctx context.Context, address string) (*WalletPayload, error)
}

type TokenLister interface {
	TokenList(ctx context.Context) ([]TokenRef, error)
}
