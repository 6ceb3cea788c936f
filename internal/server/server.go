// internal/server/server.go
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/coinsight/internal/producer"
	"github.com/user/coinsight/internal/types"
	"github.com/user/coinsight/internal/wire"
)

// Server exposes the query pipeline over HTTP: newline-delimited JSON on
// /query and server-sent events on /assist.
type Server struct {
	producer *producer.Producer
	tokens   types.TokenLister
	router   chi.Router
}

// NewServer wires the producer and token lister into a chi router.
func NewServer(p *producer.Producer, tokens types.TokenLister) *Server {
	s := &Server{
		producer: p,
		tokens:   tokens,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Get("/", s.handleStatus)
	r.Post("/query", s.handleQuery)
	r.Post("/assist", s.handleAssist)
	r.Get("/get_tokens", s.handleGetTokens)

	s.router = r
	return s
}

// ServeHTTP delegates to the internal router, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "coinsight",
		"status":  "ok",
	})
}

// handleQuery streams the event sequence for a question as NDJSON, one
// event object per line, flushed as each event is produced.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusUnprocessableEntity, "body must be a JSON object with a non-empty 'question' field")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	lw := wire.NewLineWriter(w)
	for ev := range s.producer.Produce(r.Context(), req.Question, nil) {
		if err := lw.Write(ev); err != nil {
			slog.Warn("query stream write failed", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleAssist streams the event sequence as SSE frames. The inbound body
// is normalized first; nothing is written until it validates, so malformed
// requests get a synchronous 422 instead of a broken stream.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	var body assistBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	req, err := body.normalize()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	qctx := queryContextFromSession(req.Session.Metadata)
	if body.Query != nil && body.Query.Metadata != nil {
		if qc := queryContextFromSession(body.Query.Metadata); qc != nil {
			qctx = qc
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The producer emits NDJSON lines into a pipe and the frame writer
	// re-frames them as SSE. Malformed lines surface as LOG events, so a
	// fault in the line layer never kills the event stream.
	pr, pw := io.Pipe()
	go func() {
		lw := wire.NewLineWriter(pw)
		for ev := range s.producer.Produce(r.Context(), req.Prompt, qctx) {
			if err := lw.Write(ev); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()

	fw := wire.NewFrameWriter(w)
	if err := fw.WriteFromLines(pr); err != nil {
		slog.Warn("assist stream ended with error", "query_id", req.QueryID, "error", err)
	}
}

// queryContextFromSession recovers a pre-resolved query context from request
// metadata, letting a caller that already knows the subject skip resolution.
func queryContextFromSession(meta map[string]any) *types.QueryContext {
	if meta == nil {
		return nil
	}
	subject, _ := meta["last_token"].(string)
	intent, _ := meta["last_intent"].(string)
	if subject == "" || intent == "" {
		return nil
	}
	return &types.QueryContext{
		Intent:  types.Intent(intent),
		Subject: subject,
	}
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.tokens.TokenList(r.Context())
	if err != nil {
		slog.Error("token list fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "token list unavailable")
		return
	}
	if tokens == nil {
		tokens = []types.TokenRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
