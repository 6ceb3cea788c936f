// internal/types/events.go
package types

import "encoding/json"

// EventName identifies one kind of stream event.
type EventName string

const (
	EventIntentRecognized EventName = "intent_recognized"
	EventStatusUpdate     EventName = "status_update"
	EventPriceResult      EventName = "price_result"
	EventNewsResult       EventName = "news_result"
	EventWalletResult     EventName = "wallet_info_result"
	EventTokenListResult  EventName = "token_list_result"
	EventError            EventName = "error"
	EventDone             EventName = "done"

	// EventLog is synthesized by the frame adapter when an upstream line
	// cannot be decoded. It never originates from the producer.
	EventLog EventName = "LOG"
)

// Event is one typed notification in a query's stream. The payload is kept
// as raw JSON so adapters re-frame it without touching its bytes.
type Event struct {
	Name EventName       `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Intent is the classified purpose of a user query.
type Intent string

const (
	IntentPrice    Intent = "GET_PRICE"
	IntentNews     Intent = "GET_NEWS"
	IntentOverview Intent = "GET_OVERVIEW"
	IntentWallet   Intent = "GET_WALLET_INFO"
	IntentList     Intent = "LIST_TOKENS"
)

// QueryContext is the resolver's output for one query.
type QueryContext struct {
	Intent  Intent
	Subject string
}

// IntentPayload is the data of an intent_recognized event.
type IntentPayload struct {
	Intent Intent `json:"intent"`
	Token  string `json:"token"`
}

// PricePayload is the data of a price_result event.
type PricePayload struct {
	Price     float64 `json:"price"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
}

// Article is one news headline with its link.
type Article struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NewsPayload is the data of a news_result event.
type NewsPayload struct {
	Articles []Article `json:"articles"`
}

// WalletPayload is the data of a wallet_info_result event.
type WalletPayload struct {
	Address          string `json:"address"`
	EtherscanURL     string `json:"etherscan_url"`
	ETHBalance       string `json:"eth_balance"`
	NormalTxCount    int    `json:"normal_transaction_count"`
	TokenTxCount     int    `json:"token_transaction_count"`
	FirstTransaction string `json:"first_transaction"`
	LastTransaction  string `json:"last_transaction"`
}

// TokenRef is one entry of the token listing surface.
type TokenRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TokenInfo carries the names a token is known by, used to build the
// resolver's lookup index.
type TokenInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// TokenListPayload is the data of a token_list_result event.
type TokenListPayload struct {
	Tokens []TokenRef `json:"tokens"`
}

// ErrorKind distinguishes failure classes surfaced as error events.
type ErrorKind string

const (
	ErrorKindUpstream ErrorKind = "upstream"
	ErrorKindStorage  ErrorKind = "storage"
)

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind,omitempty"`
}
