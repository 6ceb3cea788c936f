package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Errorf("expected ids=bitcoin, got %q", got)
		}
		fmt.Fprint(w, `{"bitcoin":{"usd":65000.5,"usd_market_cap":1200000,"usd_24h_vol":34000}}`)
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL)

	p, err := c.TokenPrice(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("TokenPrice: %v", err)
	}
	if p.Price != 65000.5 {
		t.Errorf("expected price 65000.5, got %v", p.Price)
	}
	if p.MarketCap != 1200000 {
		t.Errorf("expected market cap 1200000, got %v", p.MarketCap)
	}
}

func TestTokenPriceUnknownToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL)

	if _, err := c.TokenPrice(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestTokenPriceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL)

	if _, err := c.TokenPrice(context.Background(), "bitcoin"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestTokenList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"bitcoin","name":"Bitcoin","symbol":"btc"},{"id":"ethereum","name":"Ethereum","symbol":"eth"}]`)
	}))
	defer srv.Close()

	c := NewCoinGecko(srv.URL)

	refs, err := c.TokenList(context.Background())
	if err != nil {
		t.Fatalf("TokenList: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(refs))
	}
	if refs[0].Text != "Bitcoin (BTC)" {
		t.Errorf("expected display text %q, got %q", "Bitcoin (BTC)", refs[0].Text)
	}
}

func TestNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("apiKey"); got != "k" {
			t.Errorf("expected apiKey=k, got %q", got)
		}
		fmt.Fprint(w, `{"articles":[{"title":"BTC rallies","url":"https://example.com/1","author":"x"}]}`)
	}))
	defer srv.Close()

	n := NewNewsAPI("k")
	n.baseURL = srv.URL

	payload, err := n.News(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(payload.Articles) != 1 || payload.Articles[0].Title != "BTC rallies" {
		t.Errorf("unexpected articles: %+v", payload.Articles)
	}
}

func TestNewsMissingKey(t *testing.T) {
	n := NewNewsAPI("")
	if _, err := n.News(context.Background(), "bitcoin"); err == nil {
		t.Fatal("expected error when api key is missing")
	}
}

func TestWalletInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "balance":
			fmt.Fprint(w, `{"status":"1","message":"OK","result":"2500000000000000000"}`)
		case "txlist":
			fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"timeStamp":"1600000000"},{"timeStamp":"1700000000"}]}`)
		case "tokentx":
			fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"timeStamp":"1650000000"}]}`)
		default:
			t.Errorf("unexpected action %q", r.URL.Query().Get("action"))
		}
	}))
	defer srv.Close()

	e := NewEtherscan("k")
	e.baseURL = srv.URL

	info, err := e.WalletInfo(context.Background(), "0x"+testAddrHex)
	if err != nil {
		t.Fatalf("WalletInfo: %v", err)
	}
	if info.ETHBalance != "2.5000 ETH" {
		t.Errorf("expected balance 2.5000 ETH, got %q", info.ETHBalance)
	}
	if info.NormalTxCount != 2 || info.TokenTxCount != 1 {
		t.Errorf("unexpected tx counts: %+v", info)
	}
	if info.FirstTransaction != "2020-09-13" {
		t.Errorf("unexpected first tx date %q", info.FirstTransaction)
	}
	if info.LastTransaction != "2023-11-14" {
		t.Errorf("unexpected last tx date %q", info.LastTransaction)
	}
}

func TestWalletInfoBalanceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Invalid address"}`)
	}))
	defer srv.Close()

	e := NewEtherscan("k")
	e.baseURL = srv.URL

	if _, err := e.WalletInfo(context.Background(), "0x"+testAddrHex); err == nil {
		t.Fatal("expected error when balance fetch fails")
	}
}

const testAddrHex = "abcdefabcdefabcdefabcdefabcdefabcdefabcd"
