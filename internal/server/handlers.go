package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/chat"
	"github.com/hyperjump/sensei/internal/doubts"
	"github.com/hyperjump/sensei/internal/mode"
	"github.com/hyperjump/sensei/internal/models"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("chat request", zap.String("mode", req.Mode), zap.String("conversation_id", req.ConversationID))
	resp, err := s.chat.Chat(r.Context(), &req)
	if err != nil {
		s.fail(w, r, "chat", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.chat.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, "history", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": id,
		"messages":        msgs,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("clear conversation request", zap.String("conversation_id", id))
	if err := s.chat.Clear(r.Context(), id); err != nil {
		s.fail(w, r, "clear", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"conversation_id": id, "status": "cleared"})
}

type statusResponse struct {
	chat.Status
	KnowledgeSnippets int      `json:"knowledge_snippets"`
	AvailableBackends []string `json:"available_backends,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.chat.Status()}
	if s.knowledge != nil {
		resp.KnowledgeSnippets = s.knowledge.Size()
	}
	if s.backends != nil {
		resp.AvailableBackends = backend.Kinds()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"modes": mode.Templates()})
}

type switchBackendRequest struct {
	Backend string `json:"backend"`
}

func (s *Server) handleSwitchBackend(w http.ResponseWriter, r *http.Request) {
	if s.backends == nil {
		s.respondError(w, http.StatusNotImplemented, "backend switching not enabled")
		return
	}
	var req switchBackendRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind := strings.TrimSpace(req.Backend)
	if kind == "" {
		s.respondError(w, http.StatusBadRequest, "backend is required")
		return
	}
	adapter, err := s.backends(kind)
	if err != nil {
		s.fail(w, r, "switch backend", err)
		return
	}
	s.chat.SetBackend(adapter)
	s.respondJSON(w, http.StatusOK, s.chat.Status())
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.respondError(w, http.StatusNotImplemented, "knowledge base not enabled")
		return
	}
	q := r.URL.Query()
	topK := s.topK
	if raw := q.Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
		topK = n
	}
	results, err := s.knowledge.Search(r.Context(), q.Get("q"), topK)
	if err != nil {
		s.fail(w, r, "knowledge search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   q.Get("q"),
		"results": results,
	})
}

type addKnowledgeRequest struct {
	Snippets []models.KnowledgeSnippet `json:"snippets"`
}

func (s *Server) handleKnowledgeAdd(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.respondError(w, http.StatusNotImplemented, "knowledge base not enabled")
		return
	}
	var req addKnowledgeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Snippets) == 0 {
		s.respondError(w, http.StatusBadRequest, "snippets are required")
		return
	}
	if err := s.knowledge.Add(r.Context(), req.Snippets...); err != nil {
		s.fail(w, r, "knowledge add", err)
		return
	}
	s.logger.Info("knowledge snippets added", zap.Int("count", len(req.Snippets)))
	s.respondJSON(w, http.StatusCreated, map[string]int{
		"added":              len(req.Snippets),
		"knowledge_snippets": s.knowledge.Size(),
	})
}

func (s *Server) handleKnowledgeRemove(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.respondError(w, http.StatusNotImplemented, "knowledge base not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	n, err := s.knowledge.Remove(r.Context(), id)
	if err != nil {
		s.fail(w, r, "knowledge remove", err)
		return
	}
	if n == 0 {
		s.respondError(w, http.StatusNotFound, "snippet not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

// uploadMessage accepts either a bare string or {author_role, text}.
type uploadMessage models.DoubtMessage

func (m *uploadMessage) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*m = uploadMessage{Text: text}
		return nil
	}
	var dm models.DoubtMessage
	if err := json.Unmarshal(data, &dm); err != nil {
		return err
	}
	*m = uploadMessage(dm)
	return nil
}

type uploadRequest struct {
	CourseCode string          `json:"course_code"`
	Source     string          `json:"source"`
	Messages   []uploadMessage `json:"messages"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var body uploadRequest
	if !s.decode(w, r, &body) {
		return
	}
	req := &doubts.UploadRequest{
		CourseCode: body.CourseCode,
		Source:     body.Source,
		Messages:   make([]models.DoubtMessage, len(body.Messages)),
	}
	for i, m := range body.Messages {
		req.Messages[i] = models.DoubtMessage(m)
	}
	upload, err := s.doubts.Upload(r.Context(), req)
	if err != nil {
		s.fail(w, r, "upload", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":      "uploaded",
		"upload_id":   upload.ID,
		"course_code": upload.CourseCode,
		"messages":    len(upload.Messages),
	})
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := s.doubts.GetUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "get upload", err)
		return
	}
	s.respondJSON(w, http.StatusOK, upload)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	res, err := s.doubts.Summary(r.Context(), r.URL.Query().Get("course_code"))
	if err != nil {
		s.fail(w, r, "summary", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.doubts.Topics(r.Context(), r.URL.Query().Get("course_code"))
	if err != nil {
		s.fail(w, r, "topics", err)
		return
	}
	s.respondJSON(w, http.StatusOK, topics)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	course := strings.TrimSpace(r.URL.Query().Get("course_code"))
	insights, err := s.doubts.Insights(r.Context(), course)
	if err != nil {
		s.fail(w, r, "insights", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"course_code": course,
		"insights":    insights,
	})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Debug("invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps domain errors to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidMode), errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrConversationNotFound):
		return http.StatusNotFound, models.ErrConversationNotFound.Error()
	case errors.Is(err, models.ErrUploadNotFound):
		return http.StatusNotFound, models.ErrUploadNotFound.Error()
	case errors.Is(err, models.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, models.ErrBackendUnavailable.Error()
	case errors.Is(err, models.ErrClusteringFailed):
		return http.StatusInternalServerError, models.ErrClusteringFailed.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("op", op), zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("op", op), zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.respondError(w, status, msg)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
