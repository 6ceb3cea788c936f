package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/user/coinsight/internal/types"
)

func sampleSequence() []types.Event {
	return []types.Event{
		{Name: types.EventIntentRecognized, Data: json.RawMessage(`{"intent":"GET_PRICE","token":"bitcoin"}`)},
		{Name: types.EventStatusUpdate, Data: json.RawMessage(`"Fetching price for bitcoin..."`)},
		{Name: types.EventPriceResult, Data: json.RawMessage(`{"price":65000.5,"market_cap":1.2e12,"volume_24h":3.4e10}`)},
		{Name: types.EventDone, Data: json.RawMessage(`"Stream finished."`)},
	}
}

func TestLineRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLineWriter(&buf)

	seq := sampleSequence()
	for _, ev := range seq {
		if err := lw.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	scanner := bufio.NewScanner(&buf)
	var decoded []types.Event
	for scanner.Scan() {
		ev, err := DecodeLine(scanner.Bytes())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		decoded = append(decoded, ev)
	}

	if len(decoded) != len(seq) {
		t.Fatalf("expected %d events, got %d", len(seq), len(decoded))
	}
	for i := range seq {
		if decoded[i].Name != seq[i].Name {
			t.Errorf("event %d: expected name %s, got %s", i, seq[i].Name, decoded[i].Name)
		}
		if !bytes.Equal(decoded[i].Data, seq[i].Data) {
			t.Errorf("event %d: payload bytes differ: %s vs %s", i, seq[i].Data, decoded[i].Data)
		}
	}
}

func TestDecodeLineRejectsGarbage(t *testing.T) {
	if _, err := DecodeLine([]byte("not json")); err == nil {
		t.Error("expected error for non-JSON line")
	}
	if _, err := DecodeLine([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for line without event name")
	}
}

func TestFrameWriter(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	if err := fw.Write(types.Event{Name: types.EventDone, Data: json.RawMessage(`"Stream finished."`)}); err != nil {
		t.Fatal(err)
	}

	expected := "event: done\ndata: \"Stream finished.\"\n\n"
	if buf.String() != expected {
		t.Errorf("expected %q, got %q", expected, buf.String())
	}
}

func TestWriteFromLinesPreservesOrder(t *testing.T) {
	var ndjson bytes.Buffer
	lw := NewLineWriter(&ndjson)
	seq := sampleSequence()
	for _, ev := range seq {
		if err := lw.Write(ev); err != nil {
			t.Fatal(err)
		}
	}

	var sse bytes.Buffer
	fw := NewFrameWriter(&sse)
	if err := fw.WriteFromLines(&ndjson); err != nil {
		t.Fatalf("WriteFromLines: %v", err)
	}

	fr := NewFrameReader(&sse)
	for i := 0; ; i++ {
		frame, err := fr.Next()
		if err == io.EOF {
			if i != len(seq) {
				t.Fatalf("expected %d frames, got %d", len(seq), i)
			}
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if frame.Event != string(seq[i].Name) {
			t.Errorf("frame %d: expected event %s, got %s", i, seq[i].Name, frame.Event)
		}
		if frame.Data != string(seq[i].Data) {
			t.Errorf("frame %d: payload differs: %s vs %s", i, seq[i].Data, frame.Data)
		}
	}
}

func TestWriteFromLinesRecoversMalformedLine(t *testing.T) {
	input := `{"event":"status_update","data":"ok"}
this is not json
{"event":"done","data":"Stream finished."}
`
	var sse bytes.Buffer
	fw := NewFrameWriter(&sse)
	if err := fw.WriteFromLines(strings.NewReader(input)); err != nil {
		t.Fatalf("WriteFromLines: %v", err)
	}

	fr := NewFrameReader(&sse)
	var events []string
	for {
		frame, err := fr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		events = append(events, frame.Event)
		if frame.Event == string(types.EventLog) {
			var payload map[string]string
			if err := json.Unmarshal([]byte(frame.Data), &payload); err != nil {
				t.Fatalf("LOG payload not JSON: %v", err)
			}
			if payload["message"] != "this is not json" {
				t.Errorf("unexpected LOG message %q", payload["message"])
			}
		}
	}

	expected := []string{"status_update", "LOG", "done"}
	if len(events) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, events)
	}
	for i := range expected {
		if events[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, events)
		}
	}
}

func TestWriteFromLinesScannerFailureBecomesErrorFrame(t *testing.T) {
	// A line larger than the scanner's max buffer triggers a scan error,
	// which must surface as a terminal error frame, not a stream failure.
	huge := `{"event":"status_update","data":"` + strings.Repeat("x", 2*1024*1024) + `"}`

	var sse bytes.Buffer
	fw := NewFrameWriter(&sse)
	if err := fw.WriteFromLines(strings.NewReader(huge)); err != nil {
		t.Fatalf("expected absorbed failure, got %v", err)
	}

	fr := NewFrameReader(&sse)
	frame, err := fr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Event != string(types.EventError) {
		t.Errorf("expected terminal error frame, got %q", frame.Event)
	}
}

func TestFrameReaderSkipsComments(t *testing.T) {
	input := ": keep-alive\nevent: done\ndata: {}\n\n"
	fr := NewFrameReader(strings.NewReader(input))

	frame, err := fr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Event != "done" || frame.Data != "{}" {
		t.Errorf("unexpected frame %+v", frame)
	}
	if _, err := fr.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestFrameReaderDefaultsEventName(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("data: hello\n\n"))
	frame, err := fr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Event != "message" {
		t.Errorf("expected default event name, got %q", frame.Event)
	}
}
