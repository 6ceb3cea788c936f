package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/user/coinsight/internal/types"
)

// weiPerETH converts wei balances into ETH for display.
var weiPerETH = new(big.Float).SetFloat64(1e18)

// Etherscan fetches wallet balance and transaction history.
type Etherscan struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewEtherscan creates an Etherscan client.
func NewEtherscan(apiKey string) *Etherscan {
	return &Etherscan{
		apiKey:  apiKey,
		baseURL: "https://api.etherscan.io/api",
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

var _ types.WalletFetcher = (*Etherscan)(nil)

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanTx struct {
	TimeStamp string `json:"timeStamp"`
}

// WalletInfo fetches the ETH balance, transaction counts, and first/last
// transaction dates for an address.
func (e *Etherscan) WalletInfo(ctx context.Context, address string) (*types.WalletPayload, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("etherscan api key not configured")
	}

	balanceResp, err := e.call(ctx, map[string]string{
		"module": "account", "action": "balance", "address": address, "tag": "latest",
	})
	if err != nil {
		return nil, err
	}
	if balanceResp.Status != "1" {
		return nil, fmt.Errorf("fetch balance: %s", balanceResp.Message)
	}
	var wei string
	if err := json.Unmarshal(balanceResp.Result, &wei); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	balance := formatETH(wei)

	normalTxs, err := e.transactions(ctx, "txlist", address)
	if err != nil {
		return nil, err
	}
	tokenTxs, err := e.transactions(ctx, "tokentx", address)
	if err != nil {
		return nil, err
	}

	firstTx, lastTx := "N/A", "N/A"
	if len(normalTxs) > 0 {
		firstTx = txDate(normalTxs[0])
		lastTx = txDate(normalTxs[len(normalTxs)-1])
	}

	return &types.WalletPayload{
		Address:          address,
		EtherscanURL:     "https://etherscan.io/address/" + address,
		ETHBalance:       balance,
		NormalTxCount:    len(normalTxs),
		TokenTxCount:     len(tokenTxs),
		FirstTransaction: firstTx,
		LastTransaction:  lastTx,
	}, nil
}

// transactions fetches a transaction list, oldest first. A non-"1" status
// with an empty result means no transactions, not an error.
func (e *Etherscan) transactions(ctx context.Context, action, address string) ([]etherscanTx, error) {
	resp, err := e.call(ctx, map[string]string{
		"module": "account", "action": action, "address": address,
		"startblock": "0", "endblock": "99999999", "sort": "asc",
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		return nil, nil
	}
	var txs []etherscanTx
	if err := json.Unmarshal(resp.Result, &txs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", action, err)
	}
	return txs, nil
}

func (e *Etherscan) call(ctx context.Context, params map[string]string) (*etherscanResponse, error) {
	u, _ := url.Parse(e.baseURL)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("apikey", e.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("etherscan request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan error (status %d): %s", resp.StatusCode, string(body))
	}

	var result etherscanResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &result, nil
}

func formatETH(wei string) string {
	w, ok := new(big.Float).SetString(wei)
	if !ok {
		return "N/A"
	}
	eth := new(big.Float).Quo(w, weiPerETH)
	return fmt.Sprintf("%.4f ETH", eth)
}

func txDate(tx etherscanTx) string {
	ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
	if err != nil {
		return "N/A"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
