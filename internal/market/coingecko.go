// Package market wraps the upstream data providers behind typed clients.
// Each client normalizes one provider's success/error shape; callers see
// either a payload or an error, never a partially-filled result.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/coinsight/internal/types"
)

const defaultTimeout = 15 * time.Second

// CoinGecko fetches token prices and the token listing.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

// NewCoinGecko creates a CoinGecko client. An empty baseURL selects the
// public API.
func NewCoinGecko(baseURL string) *CoinGecko {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

var _ types.PriceFetcher = (*CoinGecko)(nil)
var _ types.TokenLister = (*CoinGecko)(nil)

// TokenPrice fetches the current USD price, market cap, and 24h volume for
// the given token id.
func (c *CoinGecko) TokenPrice(ctx context.Context, tokenID string) (*types.PricePayload, error) {
	u, _ := url.Parse(c.baseURL + "/simple/price")
	q := u.Query()
	q.Set("ids", tokenID)
	q.Set("vs_currencies", "usd")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")
	u.RawQuery = q.Encode()

	var result map[string]struct {
		USD          float64 `json:"usd"`
		USDMarketCap float64 `json:"usd_market_cap"`
		USD24hVol    float64 `json:"usd_24h_vol"`
	}
	if err := c.getJSON(ctx, u.String(), &result); err != nil {
		return nil, err
	}

	data, ok := result[tokenID]
	if !ok {
		return nil, fmt.Errorf("no price data for %q", tokenID)
	}
	return &types.PricePayload{
		Price:     data.USD,
		MarketCap: data.USDMarketCap,
		Volume24h: data.USD24hVol,
	}, nil
}

// Markets fetches the top tokens by market cap with the names they are
// known by. Used both for the token listing and to build the resolver index.
func (c *CoinGecko) Markets(ctx context.Context) ([]types.TokenInfo, error) {
	u, _ := url.Parse(c.baseURL + "/coins/markets")
	q := u.Query()
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", "250")
	q.Set("page", "1")
	u.RawQuery = q.Encode()

	var tokens []types.TokenInfo
	if err := c.getJSON(ctx, u.String(), &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// TokenList returns the listing entries shown to users, one per market token.
func (c *CoinGecko) TokenList(ctx context.Context) ([]types.TokenRef, error) {
	tokens, err := c.Markets(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]types.TokenRef, 0, len(tokens))
	for _, t := range tokens {
		refs = append(refs, types.TokenRef{
			ID:   t.ID,
			Text: fmt.Sprintf("%s (%s)", t.Name, strings.ToUpper(t.Symbol)),
		})
	}
	return refs, nil
}

func (c *CoinGecko) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
