// Package intent maps raw query text to an intent and an optional subject.
// The classifier is keyword-based; only its output contract matters to the
// rest of the pipeline.
package intent

import (
	"regexp"
	"strings"

	"github.com/user/coinsight/internal/types"
)

// walletAddressRe matches an Ethereum-style wallet address anywhere in the
// lowercased text.
var walletAddressRe = regexp.MustCompile(`0x[a-f0-9]{40}`)

// IsWalletAddress reports whether s is exactly a wallet address.
func IsWalletAddress(s string) bool {
	m := walletAddressRe.FindString(strings.ToLower(s))
	return m != "" && len(m) == len(s)
}

// Index is an immutable token lookup table built once at startup and passed
// by reference into the resolver. It is never mutated after construction.
type Index struct {
	tokens []types.TokenInfo
}

// NewIndex builds an Index from market data. Names are lowercased for
// matching; the input slice is copied.
func NewIndex(tokens []types.TokenInfo) *Index {
	copied := make([]types.TokenInfo, 0, len(tokens))
	for _, t := range tokens {
		copied = append(copied, types.TokenInfo{
			ID:     strings.ToLower(t.ID),
			Name:   strings.ToLower(t.Name),
			Symbol: strings.ToLower(t.Symbol),
		})
	}
	return &Index{tokens: copied}
}

// DefaultIndex returns a small static index used when the token listing
// cannot be fetched at startup.
func DefaultIndex() *Index {
	return NewIndex([]types.TokenInfo{
		{ID: "bitcoin", Name: "bitcoin", Symbol: "btc"},
		{ID: "ethereum", Name: "ethereum", Symbol: "eth"},
		{ID: "solana", Name: "solana", Symbol: "sol"},
		{ID: "ripple", Name: "xrp", Symbol: "xrp"},
		{ID: "dogecoin", Name: "dogecoin", Symbol: "doge"},
		{ID: "cardano", Name: "cardano", Symbol: "ada"},
		{ID: "tether", Name: "tether", Symbol: "usdt"},
		{ID: "litecoin", Name: "litecoin", Symbol: "ltc"},
	})
}

// Len returns the number of indexed tokens.
func (ix *Index) Len() int { return len(ix.tokens) }

// match returns the token id referenced by text, or "". Punctuation is
// treated as word boundaries so "bitcoin?" still matches.
func (ix *Index) match(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, text)
	padded := " " + strings.Join(strings.Fields(cleaned), " ") + " "

	for _, t := range ix.tokens {
		if strings.Contains(padded, " "+t.Name+" ") ||
			strings.Contains(padded, " "+t.Symbol+" ") ||
			strings.Contains(padded, " "+t.ID+" ") {
			return t.ID
		}
	}
	return ""
}

// Resolver classifies query text against a fixed intent set.
type Resolver struct {
	index *Index
}

// NewResolver creates a Resolver over the given index.
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve maps text to {intent, subject-or-none}. Wallet addresses win over
// everything; a listing request needs no subject; otherwise the intent comes
// from keywords (default overview) and the subject from the index.
func (r *Resolver) Resolve(text string) types.QueryContext {
	lower := strings.ToLower(strings.TrimSpace(text))

	if addr := walletAddressRe.FindString(lower); addr != "" {
		return types.QueryContext{Intent: types.IntentWallet, Subject: addr}
	}

	if strings.Contains(lower, "list") ||
		(strings.Contains(lower, "show") && strings.Contains(lower, "token")) {
		return types.QueryContext{Intent: types.IntentList}
	}

	intent := types.IntentOverview
	switch {
	case strings.Contains(lower, "price") || strings.Contains(lower, "how much") || strings.Contains(lower, "cost"):
		intent = types.IntentPrice
	case strings.Contains(lower, "news") || strings.Contains(lower, "headlines") || strings.Contains(lower, "latest"):
		intent = types.IntentNews
	}

	return types.QueryContext{Intent: intent, Subject: r.index.match(lower)}
}
