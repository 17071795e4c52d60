package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/conversation"
	"github.com/hyperjump/sensei/internal/models"
)

// echo is a deterministic backend: the answer depends only on the request.
type echo struct {
	mu       sync.Mutex
	name     string
	failures int // calls that fail before answering
	early    int // streams that open, then fail before their first chunk
	midFail  bool
	block    bool // stream one chunk, then wait for cancellation
	calls    int
	reqs     []*backend.Request
}

func (e *echo) Name() string {
	if e.name == "" {
		return "echo"
	}
	return e.name
}

func (e *echo) Model() string { return "echo-1" }

func (e *echo) answer(req *backend.Request) string {
	return fmt.Sprintf("%s says: you asked %q after %d messages", e.Name(), req.Prompt, len(req.History))
}

func (e *echo) start(req *backend.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.reqs = append(e.reqs, req)
	if e.failures > 0 {
		e.failures--
		return fmt.Errorf("%w: echo: down", models.ErrBackendUnavailable)
	}
	return nil
}

func (e *echo) Complete(ctx context.Context, req *backend.Request) (string, error) {
	if err := e.start(req); err != nil {
		return "", err
	}
	return e.answer(req), nil
}

func (e *echo) Stream(ctx context.Context, req *backend.Request) (<-chan backend.Chunk, error) {
	if err := e.start(req); err != nil {
		return nil, err
	}
	if e.failEarly() {
		ch := make(chan backend.Chunk, 1)
		ch <- backend.Chunk{Err: fmt.Errorf("%w: echo: stream reset", models.ErrBackendUnavailable)}
		close(ch)
		return ch, nil
	}
	words := strings.SplitAfter(e.answer(req), " ")
	ch := make(chan backend.Chunk)
	go func() {
		defer close(ch)
		for i, w := range words {
			select {
			case ch <- backend.Chunk{Text: w}:
			case <-ctx.Done():
				return
			}
			if i == 1 && e.midFail {
				ch <- backend.Chunk{Err: fmt.Errorf("%w: echo: connection reset", models.ErrBackendUnavailable)}
				return
			}
			if i == 1 && e.block {
				<-ctx.Done()
				return
			}
		}
	}()
	return ch, nil
}

func (e *echo) failEarly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.early > 0 {
		e.early--
		return true
	}
	return false
}

func (e *echo) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type staticSearcher []models.KnowledgeSnippet

func (s staticSearcher) Search(ctx context.Context, query string, topK int) ([]models.KnowledgeSnippet, error) {
	if topK < len(s) {
		return s[:topK], nil
	}
	return s, nil
}

type failingSearcher struct{}

func (failingSearcher) Search(ctx context.Context, query string, topK int) ([]models.KnowledgeSnippet, error) {
	return nil, errors.New("index unavailable")
}

func testBackendConfig() config.BackendConfig {
	return config.BackendConfig{
		Timeout:       5 * time.Second,
		RetryBackoff:  time.Millisecond,
		ContextTokens: 4096,
	}
}

func newTestOrchestrator(t *testing.T, a backend.Adapter, opts ...Option) (*Orchestrator, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore(config.ConversationConfig{
		TTL:             time.Minute,
		CleanupInterval: time.Minute,
		MaxHistory:      100,
	}, conversation.WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = store.Close() })
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return NewOrchestrator(store, a, testBackendConfig(), opts...), store
}

func drainSession(t *testing.T, s *Session) string {
	t.Helper()
	var b strings.Builder
	for c := range s.Chunks() {
		b.WriteString(c)
	}
	return b.String()
}
