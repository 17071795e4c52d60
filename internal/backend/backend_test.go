package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/models"
)

// scripted replies with the next canned answer on each call and records the requests.
type scripted struct {
	mu      sync.Mutex
	replies []string
	reqs    []*Request
}

func (s *scripted) Name() string  { return "scripted" }
func (s *scripted) Model() string { return "script-1" }

func (s *scripted) next(req *Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if len(s.replies) == 0 {
		return "", unavailable(s.Name(), errors.New("script exhausted"))
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scripted) Complete(ctx context.Context, req *Request) (string, error) {
	return s.next(req)
}

// Stream emits the reply in 4-byte pieces so marker detection sees split input.
func (s *scripted) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	r, err := s.next(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for len(r) > 0 {
			n := 4
			if n > len(r) {
				n = len(r)
			}
			if !send(ctx, ch, Chunk{Text: r[:n]}) {
				return
			}
			r = r[n:]
		}
	}()
	return ch, nil
}

func collect(t *testing.T, ch <-chan Chunk) (string, error) {
	t.Helper()
	var b strings.Builder
	for c := range ch {
		if c.Err != nil {
			return b.String(), c.Err
		}
		b.WriteString(c.Text)
	}
	return b.String(), nil
}

func TestNew(t *testing.T) {
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	for _, kind := range Kinds() {
		a, err := New(kind, cfg.Backend)
		if err != nil {
			t.Fatalf("New(%q): %v", kind, err)
		}
		if a.Name() != kind {
			t.Errorf("Name = %q, want %q", a.Name(), kind)
		}
	}
	if _, err := New("telepathy", cfg.Backend); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("unknown kind: err = %v", err)
	}
	cfg.Backend.Framework.Inner = KindFramework
	if _, err := New(KindFramework, cfg.Backend); err == nil {
		t.Error("framework inside framework should fail")
	}
}

func TestNew_frameworkModelIsInnerModel(t *testing.T) {
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Backend.Framework.Inner = KindNativeLight
	a, err := New(KindFramework, cfg.Backend)
	if err != nil {
		t.Fatal(err)
	}
	if a.Model() != cfg.Backend.Ollama.Model {
		t.Errorf("Model = %q, want %q", a.Model(), cfg.Backend.Ollama.Model)
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	err := unavailable("x", context.DeadlineExceeded)
	if !errors.Is(err, models.ErrBackendUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v lost a cause", err)
	}
	if again := unavailable("y", err); again != err {
		t.Error("already-wrapped error should pass through")
	}
}
