// internal/session/render.go
package session

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/user/coinsight/internal/types"
)

// PageSize is the number of token-list entries shown per page.
const PageSize = 20

// Renderer accumulates one outbound message per turn from the event stream.
// The exact field layout is presentation only; the contract is that content
// grows per event (token lists replace it) and Dirty gates re-renders.
type Renderer struct {
	body     string
	lastSent string
	showMore bool
}

// NewRenderer creates an empty per-turn renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Text returns the accumulated message body.
func (r *Renderer) Text() string { return r.body }

// Dirty reports whether the body changed since the last MarkSent.
func (r *Renderer) Dirty() bool {
	return r.body != "" && r.body != r.lastSent
}

// MarkSent records that the current body has been delivered.
func (r *Renderer) MarkSent() { r.lastSent = r.body }

// ShowMore reports whether the current token-list page has a next page.
func (r *Renderer) ShowMore() bool { return r.showMore }

func (r *Renderer) append(block string) {
	if r.body != "" && !strings.HasSuffix(r.body, "\n") {
		r.body += "\n"
	}
	r.body += block + "\n"
}

// Apply folds one event into the message body. Token lists replace the body
// and snapshot the list on the session for later pages; Apply reports whether
// it mutated the session so the caller can persist it.
func (r *Renderer) Apply(s *Session, ev types.Event) bool {
	switch ev.Name {
	case types.EventPriceResult:
		var p types.PricePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return false
		}
		r.append(fmt.Sprintf("<b>Price:</b> $%.2f\n<b>Market Cap:</b> $%.0f", p.Price, p.MarketCap))

	case types.EventNewsResult:
		var n types.NewsPayload
		if err := json.Unmarshal(ev.Data, &n); err != nil {
			return false
		}
		lines := make([]string, 0, len(n.Articles))
		for _, a := range n.Articles {
			if a.Title == "" || a.URL == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf(`- <a href="%s">%s</a>`, html.EscapeString(a.URL), html.EscapeString(a.Title)))
		}
		if len(lines) > 0 {
			r.append("<b>Recent News:</b>\n" + strings.Join(lines, "\n"))
		}

	case types.EventWalletResult:
		var w types.WalletPayload
		if err := json.Unmarshal(ev.Data, &w); err != nil {
			return false
		}
		r.append(fmt.Sprintf(
			"<b>Wallet Info for <code>%s</code></b>\n"+
				"<b>Balance:</b> %s\n"+
				"<b>ETH Transactions:</b> %d\n"+
				"<b>Token Transactions:</b> %d\n"+
				"<b>First Tx:</b> %s\n"+
				"<b>Last Tx:</b> %s\n"+
				`<a href="%s">View on Etherscan</a>`,
			html.EscapeString(w.Address), html.EscapeString(w.ETHBalance),
			w.NormalTxCount, w.TokenTxCount,
			html.EscapeString(w.FirstTransaction), html.EscapeString(w.LastTransaction),
			html.EscapeString(w.EtherscanURL)))

	case types.EventTokenListResult:
		var tl types.TokenListPayload
		if err := json.Unmarshal(ev.Data, &tl); err != nil {
			return false
		}
		s.TokenList = tl.Tokens
		s.PageStart = 0
		text, hasMore := RenderTokenPage(tl.Tokens, 0)
		r.body = text
		r.showMore = hasMore
		return true

	case types.EventError:
		var ep types.ErrorPayload
		if err := json.Unmarshal(ev.Data, &ep); err != nil {
			return false
		}
		msg := ep.Message
		if msg == "" {
			msg = string(ev.Data)
		}
		r.append("<b>Error:</b> " + html.EscapeString(msg))

	case types.EventStatusUpdate, types.EventLog:
		var msg string
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			msg = string(ev.Data)
		}
		if msg != "" {
			r.append(fmt.Sprintf("<i>(%s)</i> %s", ev.Name, html.EscapeString(msg)))
		}
	}
	return false
}

// RenderTokenPage renders one page of the token list starting at start.
// It reports whether entries remain beyond this page.
func RenderTokenPage(tokens []types.TokenRef, start int) (string, bool) {
	if start < 0 {
		start = 0
	}
	if start >= len(tokens) {
		return "No more tokens.", false
	}
	end := start + PageSize
	if end > len(tokens) {
		end = len(tokens)
	}

	lines := make([]string, 0, end-start+1)
	lines = append(lines, "<b>Here are the top tokens available:</b>")
	for _, t := range tokens[start:end] {
		lines = append(lines, "- "+html.EscapeString(t.Text))
	}
	return strings.Join(lines, "\n"), end < len(tokens)
}

// NextPage advances the session's pagination cursor and renders the next
// slice of the cached list: next_start = current_end.
func NextPage(s *Session, start int) (string, bool) {
	s.PageStart = start
	return RenderTokenPage(s.TokenList, start)
}
