package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/chat"
	"github.com/hyperjump/sensei/internal/models"
)

const sseDone = "[DONE]"

type streamStart struct {
	ConversationID       string      `json:"conversation_id"`
	Mode                 models.Mode `json:"mode"`
	Sources              []string    `json:"sources"`
	KnowledgeSourcesUsed int         `json:"knowledge_sources_used"`
}

type streamChunk struct {
	Chunk string `json:"chunk"`
}

type streamError struct {
	Error string `json:"error"`
}

// handleChatStream answers with server-sent events: a start event carrying the conversation id
// and sources, one event per chunk, an error event if the backend fails, then [DONE].
// Errors found before the first event are plain JSON responses.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	var req chat.Request
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sess, err := s.chat.Stream(ctx, &req)
	if err != nil {
		s.fail(w, r, "chat stream", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	write := func(v interface{}) {
		if ctx.Err() != nil {
			return
		}
		if err := writeEvent(w, v); err != nil {
			s.logger.Debug("stream client gone", zap.String("conversation_id", sess.ConversationID), zap.Error(err))
			cancel()
			return
		}
		flusher.Flush()
	}

	sources := sess.Sources
	if sources == nil {
		sources = []string{}
	}
	write(streamStart{
		ConversationID:       sess.ConversationID,
		Mode:                 sess.Mode,
		Sources:              sources,
		KnowledgeSourcesUsed: sess.KnowledgeSourcesUsed,
	})
	// Keep reading after a failed write so the session can persist and close.
	for c := range sess.Chunks() {
		write(streamChunk{Chunk: c})
	}
	if err := sess.Err(); err != nil {
		_, msg := statusFor(err)
		write(streamError{Error: msg})
	}
	write(sseDone)
}

func writeEvent(w io.Writer, v interface{}) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintf(w, "data: %s\n\n", s)
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
