package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/sensei/internal/doubts"
	"github.com/hyperjump/sensei/internal/models"
)

// ReadDoubts parses a doubt export: either a JSON upload object ({course_code, source, messages})
// or plain text with one question per line. course, when set, overrides the file's course code.
func ReadDoubts(r io.Reader, course string) (*doubts.UploadRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read doubts: %w", err)
	}
	req := &doubts.UploadRequest{Source: "cli"}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var body struct {
			CourseCode string            `json:"course_code"`
			Source     string            `json:"source"`
			Messages   []json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return nil, fmt.Errorf("parse doubts: %w", err)
		}
		req.CourseCode = body.CourseCode
		if body.Source != "" {
			req.Source = body.Source
		}
		for i, raw := range body.Messages {
			var text string
			if err := json.Unmarshal(raw, &text); err == nil {
				req.Messages = append(req.Messages, models.DoubtMessage{Text: text})
				continue
			}
			var m models.DoubtMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("parse doubts: message %d: %w", i, err)
			}
			req.Messages = append(req.Messages, m)
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				req.Messages = append(req.Messages, models.DoubtMessage{Text: line})
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read doubts: %w", err)
		}
	}
	if course != "" {
		req.CourseCode = course
	}
	return req, nil
}
