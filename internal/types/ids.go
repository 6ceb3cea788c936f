// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ConversationID string
type QueryID string
type RequestID string
type ProcessorID string
type ActivityID string

func NewQueryID() QueryID {
	return QueryID(uuid.New().String())
}

func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

func NewProcessorID() ProcessorID {
	return ProcessorID(uuid.New().String())
}

func NewActivityID() ActivityID {
	return ActivityID(uuid.New().String())
}

func NewConversationID(parts ...string) ConversationID {
	return ConversationID(strings.Join(parts, ":"))
}
