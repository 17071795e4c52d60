// Package backend runs prompts against interchangeable language model backends.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/sensei/internal/models"
)

// Backend kinds accepted by New and by the active-backend switch.
const (
	KindDirectAPI   = "direct_api"
	KindFramework   = "framework"
	KindNativeLight = "native_light"
)

// Kinds returns the supported backend kinds.
func Kinds() []string {
	return []string{KindDirectAPI, KindFramework, KindNativeLight}
}

// Request is a fully built prompt: system template (with retrieved context), prior turns and
// the latest user message.
type Request struct {
	System  string
	History []models.Message
	Prompt  string
}

// Chunk is one piece of a streamed answer. A chunk with Err set is the last one.
type Chunk struct {
	Text string
	Err  error
}

// Adapter executes prompts against one model. Every transport or upstream failure is reported
// as models.ErrBackendUnavailable. Adapters never retry.
//
// Stream returns a channel that is closed when the answer ends, fails, or ctx is cancelled.
// A stream cannot be restarted; call Stream again for a new attempt.
type Adapter interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *Request) (string, error)
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}

// unavailable wraps err as ErrBackendUnavailable, keeping the cause (and any context error)
// visible to errors.Is.
func unavailable(backend string, err error) error {
	if errors.Is(err, models.ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", models.ErrBackendUnavailable, backend, err)
}

func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func roleOf(r models.Role) string {
	if r == models.RoleAssistant {
		return "assistant"
	}
	return "user"
}
