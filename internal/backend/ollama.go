package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/config"
)

// NativeLight talks to a local Ollama server through its /api/chat endpoint.
type NativeLight struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewNativeLight returns an Ollama adapter. Deadlines come from the caller's context, so the
// default client has no timeout of its own.
func NewNativeLight(cfg config.OllamaConfig, httpClient *http.Client, logger *zap.Logger) *NativeLight {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NativeLight{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  httpClient,
		logger:  logger,
	}
}

// Name implements Adapter.
func (n *NativeLight) Name() string { return KindNativeLight }

// Model implements Adapter.
func (n *NativeLight) Model() string { return n.model }

func (n *NativeLight) post(ctx context.Context, req *Request, stream bool) (*http.Response, error) {
	msgs := make([]ollamaMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		msgs = append(msgs, ollamaMessage{Role: roleOf(m.Role), Content: m.Content})
	}
	msgs = append(msgs, ollamaMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(ollamaChatRequest{Model: n.model, Messages: msgs, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, unavailable(n.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, unavailable(n.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		n.logger.Warn("ollama rejected chat", zap.Int("status", resp.StatusCode), zap.ByteString("body", msg))
		return nil, unavailable(n.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	return resp, nil
}

// Complete implements Adapter.
func (n *NativeLight) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := n.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", unavailable(n.Name(), fmt.Errorf("decoding response: %w", err))
	}
	if out.Error != "" {
		return "", unavailable(n.Name(), errors.New(out.Error))
	}
	return out.Message.Content, nil
}

// Stream implements Adapter. Ollama streams one JSON object per line.
func (n *NativeLight) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	resp, err := n.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var part ollamaChatResponse
			if err := json.Unmarshal(line, &part); err != nil {
				send(ctx, ch, Chunk{Err: unavailable(n.Name(), fmt.Errorf("decoding stream: %w", err))})
				return
			}
			if part.Error != "" {
				send(ctx, ch, Chunk{Err: unavailable(n.Name(), errors.New(part.Error))})
				return
			}
			if part.Message.Content != "" && !send(ctx, ch, Chunk{Text: part.Message.Content}) {
				return
			}
			if part.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			send(ctx, ch, Chunk{Err: unavailable(n.Name(), err)})
			return
		}
		if ctx.Err() == nil {
			send(ctx, ch, Chunk{Err: unavailable(n.Name(), io.ErrUnexpectedEOF)})
		}
	}()
	return ch, nil
}
