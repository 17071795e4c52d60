package cli

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadStream(t *testing.T) {
	body := "data: {\"conversation_id\":\"c-1\",\"sources\":[\"Recursion\"]}\n\n" +
		"data: {\"chunk\":\"Hello \"}\n\n" +
		"data: {\"chunk\":\"world\"}\n\n" +
		"data: [DONE]\n\n"
	var text strings.Builder
	var id string
	err := ReadStream(strings.NewReader(body), func(ev StreamEvent) {
		if ev.ConversationID != "" {
			id = ev.ConversationID
		}
		text.WriteString(ev.Chunk)
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "c-1" || text.String() != "Hello world" {
		t.Errorf("id %q text %q", id, text.String())
	}
}

func TestReadStream_errorEvent(t *testing.T) {
	body := "data: {\"conversation_id\":\"c-1\"}\n\ndata: {\"error\":\"backend unavailable, please retry\"}\n\ndata: [DONE]\n\n"
	err := ReadStream(strings.NewReader(body), func(StreamEvent) {})
	if err == nil || !strings.Contains(err.Error(), "backend unavailable") {
		t.Errorf("err = %v", err)
	}
}

func TestReadStream_truncated(t *testing.T) {
	err := ReadStream(strings.NewReader("data: {\"chunk\":\"partial\"}\n\n"), func(StreamEvent) {})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want ErrUnexpectedEOF", err)
	}
}
