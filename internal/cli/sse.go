package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StreamEvent is one decoded server-sent event of /chatbot/chat/stream.
type StreamEvent struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	Chunk          string   `json:"chunk,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// ReadStream decodes SSE data lines from r and calls fn for each event until [DONE].
// An error event is returned as an error after fn has seen it.
func ReadStream(r io.Reader, fn func(StreamEvent)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(ev)
		if ev.Error != "" {
			return fmt.Errorf("stream failed: %s", ev.Error)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
