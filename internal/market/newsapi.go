package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/user/coinsight/internal/types"
)

// NewsAPI fetches recent headlines for a token query.
type NewsAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsAPI creates a NewsAPI client.
func NewNewsAPI(apiKey string) *NewsAPI {
	return &NewsAPI{
		apiKey:  apiKey,
		baseURL: "https://newsapi.org/v2",
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

var _ types.NewsFetcher = (*NewsAPI)(nil)

type newsResponse struct {
	Articles []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"articles"`
}

// News fetches the five most recent articles mentioning the query in a
// cryptocurrency context.
func (n *NewsAPI) News(ctx context.Context, query string) (*types.NewsPayload, error) {
	if n.apiKey == "" {
		return nil, fmt.Errorf("news api key not configured")
	}

	u, _ := url.Parse(n.baseURL + "/everything")
	q := u.Query()
	q.Set("q", fmt.Sprintf("%q cryptocurrency", query))
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", "5")
	q.Set("apiKey", n.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news api error (status %d): %s", resp.StatusCode, string(body))
	}

	var result newsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	payload := &types.NewsPayload{Articles: make([]types.Article, 0, len(result.Articles))}
	for _, a := range result.Articles {
		payload.Articles = append(payload.Articles, types.Article{Title: a.Title, URL: a.URL})
	}
	return payload, nil
}
