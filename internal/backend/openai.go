package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/config"
)

// DirectAPI calls an OpenAI-compatible chat completions endpoint.
type DirectAPI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewDirectAPI returns a DirectAPI adapter. A nil httpClient uses the library default.
func NewDirectAPI(cfg config.OpenAIConfig, httpClient *http.Client, logger *zap.Logger) *DirectAPI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectAPI{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// Name implements Adapter.
func (d *DirectAPI) Name() string { return KindDirectAPI }

// Model implements Adapter.
func (d *DirectAPI) Model() string { return d.model }

func (d *DirectAPI) request(req *Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if roleOf(m.Role) == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	return openai.ChatCompletionRequest{
		Model:       d.model,
		Messages:    msgs,
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
		Stream:      stream,
	}
}

// Complete implements Adapter.
func (d *DirectAPI) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := d.client.CreateChatCompletion(ctx, d.request(req, false))
	if err != nil {
		return "", d.fail(err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable(d.Name(), errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Adapter.
func (d *DirectAPI) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	stream, err := d.client.CreateChatCompletionStream(ctx, d.request(req, true))
	if err != nil {
		return nil, d.fail(err)
	}
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				send(ctx, ch, Chunk{Err: d.fail(err)})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, Chunk{Text: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()
	return ch, nil
}

func (d *DirectAPI) fail(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		d.logger.Warn("chat completion rejected", zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", apiErr.Message))
		err = fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err)
	case errors.As(err, &reqErr):
		d.logger.Warn("chat completion request failed", zap.Int("status", reqErr.HTTPStatusCode), zap.Error(reqErr.Err))
	}
	return unavailable(d.Name(), err)
}
