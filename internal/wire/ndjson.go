// Package wire re-encodes event sequences into transport framings. Adapters
// preserve order and payload bytes; they change the wire shape only.
package wire

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/user/coinsight/internal/types"
)

// LineWriter emits one self-delimited JSON object per event, in the exact
// order received, buffering nothing beyond the current event.
type LineWriter struct {
	w io.Writer
}

// NewLineWriter creates a LineWriter over w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// Write encodes one event as `{"event":name,"data":payload}` plus newline.
func (lw *LineWriter) Write(ev types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')
	if _, err := lw.w.Write(data); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// DecodeLine parses one NDJSON line back into an event. The payload bytes
// are returned exactly as they appeared on the wire.
func DecodeLine(line []byte) (types.Event, error) {
	var ev types.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return types.Event{}, fmt.Errorf("decode line: %w", err)
	}
	if ev.Name == "" {
		return types.Event{}, fmt.Errorf("decode line: missing event name")
	}
	return ev, nil
}
