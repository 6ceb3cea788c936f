// internal/server/request.go
package server

import (
	"errors"

	"github.com/user/coinsight/internal/types"
)

// queryRequest is the body for POST /query. Only the question is accepted.
type queryRequest struct {
	Question string `json:"question"`
}

// assistBody is the flexible inbound shape for POST /assist: the prompt may
// arrive top-level or wrapped, and session identifiers are optional.
type assistBody struct {
	Prompt  string         `json:"prompt,omitempty"`
	Query   *assistQuery   `json:"query,omitempty"`
	Session *assistSession `json:"session,omitempty"`
	Files   []any          `json:"files,omitempty"`
	Images  []any          `json:"images,omitempty"`
}

type assistQuery struct {
	ID       string         `json:"id,omitempty"`
	Prompt   string         `json:"prompt,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type assistSession struct {
	ProcessorID string         `json:"processor_id,omitempty"`
	ActivityID  string         `json:"activity_id,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// assistRequest is the canonical internal value every handler works from.
// Normalization happens exactly once, before any business logic runs.
type assistRequest struct {
	Prompt  string
	QueryID types.QueryID
	Session assistSession
}

var errMissingPrompt = errors.New("missing prompt (use 'prompt' or 'query.prompt')")

// normalize validates the flexible body and fills defaults: the wrapped
// prompt wins over the top-level one, and absent identifiers get fresh IDs.
func (b *assistBody) normalize() (*assistRequest, error) {
	req := &assistRequest{}

	switch {
	case b.Query != nil && b.Query.Prompt != "":
		req.Prompt = b.Query.Prompt
	case b.Prompt != "":
		req.Prompt = b.Prompt
	default:
		return nil, errMissingPrompt
	}

	if b.Query != nil && b.Query.ID != "" {
		req.QueryID = types.QueryID(b.Query.ID)
	} else {
		req.QueryID = types.NewQueryID()
	}

	if b.Session != nil {
		req.Session = *b.Session
	}
	if req.Session.ProcessorID == "" {
		req.Session.ProcessorID = string(types.NewProcessorID())
	}
	if req.Session.ActivityID == "" {
		req.Session.ActivityID = string(types.NewActivityID())
	}
	if req.Session.RequestID == "" {
		req.Session.RequestID = string(types.NewRequestID())
	}
	if req.Session.Metadata == nil {
		req.Session.Metadata = map[string]any{}
	}
	return req, nil
}
