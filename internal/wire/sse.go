// internal/wire/sse.go
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/user/coinsight/internal/types"
)

// FrameWriter emits events as Server-Sent-Events frames: an `event:` line,
// a `data:` line carrying the JSON payload, and a blank-line separator.
// If the underlying writer is an http.ResponseWriter, each frame is flushed.
type FrameWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewFrameWriter creates a FrameWriter over w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	fw := &FrameWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// Write emits one frame.
func (fw *FrameWriter) Write(ev types.Event) error {
	data := ev.Data
	if len(data) == 0 {
		data = []byte("null")
	}
	if _, err := fmt.Fprintf(fw.w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return nil
}

// WriteFromLines re-encodes an NDJSON event stream into SSE frames. A line
// that cannot be decoded becomes a synthetic LOG frame instead of failing
// the stream; any internal failure is converted into a terminal error frame
// so no crash reaches the transport.
func (fw *FrameWriter) WriteFromLines(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		ev, err := DecodeLine(line)
		if err != nil {
			ev = logEvent(strings.TrimSpace(string(line)))
		}
		if err := fw.Write(ev); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fw.writeTerminalError(err)
	}
	return nil
}

// writeTerminalError converts an adapter failure into a final error frame.
// The write error (if any) is ignored; the stream is ending either way.
func (fw *FrameWriter) writeTerminalError(cause error) error {
	payload, _ := json.Marshal(types.ErrorPayload{Message: cause.Error()})
	fw.Write(types.Event{Name: types.EventError, Data: payload})
	return nil
}

func logEvent(line string) types.Event {
	payload, _ := json.Marshal(map[string]string{"message": line})
	return types.Event{Name: types.EventLog, Data: payload}
}

// Frame is one decoded SSE frame on the consumer side.
type Frame struct {
	Event string
	Data  string
}

// FrameReader parses an SSE byte stream into frames. It understands
// `event:` and `data:` fields, ignores comment lines, joins multi-line data
// with newlines, and dispatches a frame on each blank line.
type FrameReader struct {
	scanner *bufio.Scanner
}

// NewFrameReader creates a FrameReader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &FrameReader{scanner: scanner}
}

// Next returns the next complete frame, or io.EOF when the stream ends.
func (fr *FrameReader) Next() (*Frame, error) {
	var event string
	var dataLines []string

	for fr.scanner.Scan() {
		line := strings.TrimRight(fr.scanner.Text(), "\n")

		if line == "" {
			if len(dataLines) > 0 {
				if event == "" {
					event = "message"
				}
				return &Frame{Event: event, Data: strings.Join(dataLines, "\n")}, nil
			}
			event = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimSpace(after))
			continue
		}
		dataLines = append(dataLines, line)
	}

	if err := fr.scanner.Err(); err != nil {
		return nil, err
	}
	if len(dataLines) > 0 {
		if event == "" {
			event = "message"
		}
		return &Frame{Event: event, Data: strings.Join(dataLines, "\n")}, nil
	}
	return nil, io.EOF
}
