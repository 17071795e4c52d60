package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/models"
)

// Session is a streaming turn. Read Chunks until it is closed, then check Err. The exchange is
// persisted before Chunks closes. A consumer that stops reading must cancel the context it
// passed to Stream.
type Session struct {
	ConversationID       string
	Mode                 models.Mode
	Sources              []string
	KnowledgeSourcesUsed int

	chunks chan string
	answer strings.Builder
	err    error
}

// Chunks yields answer text as the backend produces it.
func (s *Session) Chunks() <-chan string {
	return s.chunks
}

// Err reports why the stream ended early. It is only meaningful after Chunks is closed:
// ErrBackendUnavailable for backend failures, the context error for cancellation, nil on success.
func (s *Session) Err() error {
	return s.err
}

// Answer is the text produced so far. After Chunks closes it is the full (or partial) answer.
func (s *Session) Answer() string {
	return s.answer.String()
}

// Stream starts a streaming turn. Validation, conversation and backend connection errors are
// returned directly; once a Session is returned, later failures arrive through Err.
//
// If ctx is cancelled mid-stream, text produced so far is persisted as a partial assistant
// message together with the user message. A cancellation before any text persists nothing.
func (o *Orchestrator) Stream(ctx context.Context, req *Request) (*Session, error) {
	t, err := o.prepare(ctx, req)
	if err != nil {
		o.metrics.ChatFailed(errorType(err))
		return nil, err
	}
	o.advance(t, StateDispatched)

	var (
		ch     <-chan backend.Chunk
		cancel context.CancelFunc
	)
	err = o.withRetry(ctx, t, func(ctx context.Context) error {
		var err error
		ch, cancel, err = o.openStream(ctx, t)
		return err
	})
	if err != nil {
		o.abort(ctx, t)
		o.metrics.ChatFailed(errorType(err))
		o.logger.Warn("stream open failed", zap.String("conversation_id", t.id), zap.Error(err))
		return nil, err
	}

	s := &Session{
		ConversationID:       t.id,
		Mode:                 t.tmpl.Mode,
		Sources:              titles(t.sources),
		KnowledgeSourcesUsed: len(t.sources),
		chunks:               make(chan string),
	}
	o.advance(t, StateStreaming)
	go o.relay(ctx, t, s, ch, cancel)
	return s, nil
}

func (o *Orchestrator) openStream(ctx context.Context, t *turn) (<-chan backend.Chunk, context.CancelFunc, error) {
	cctx, cancel := o.backendContext(ctx)
	ch, err := t.adapter.Stream(cctx, t.req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return ch, cancel, nil
}

func (o *Orchestrator) relay(ctx context.Context, t *turn, s *Session, ch <-chan backend.Chunk, cancel context.CancelFunc) {
	defer close(s.chunks)
	streamDone := o.metrics.StreamStarted()
	defer streamDone()

	for {
		err := o.drain(ctx, ch, s)
		cancel()
		if err == nil && ctx.Err() == nil {
			break
		}
		if ctx.Err() != nil {
			o.cancelled(ctx, t, s)
			return
		}
		err = o.classify(ctx, err)
		if s.answer.Len() == 0 && !t.retried {
			t.retried = true
			o.metrics.Retried()
			o.logger.Debug("retrying stream before first chunk", zap.String("conversation_id", t.id), zap.Error(err))
			if serr := o.sleep(ctx, o.cfg.RetryBackoff); serr == nil {
				if ch, cancel, err = o.openStream(ctx, t); err == nil {
					continue
				}
				err = o.classify(ctx, err)
			} else {
				err = serr
			}
		}
		if ctx.Err() != nil {
			o.cancelled(ctx, t, s)
			return
		}
		s.err = err
		o.abort(ctx, t)
		o.metrics.ChatFailed(errorType(err))
		o.logger.Warn("stream failed", zap.String("conversation_id", t.id), zap.Error(err))
		return
	}

	if err := o.persist(ctx, t, s.answer.String(), false); err != nil {
		s.err = err
		o.abort(ctx, t)
		o.metrics.ChatFailed(errorType(err))
		return
	}
	t.release()
	o.advance(t, StateCompleted)
	o.metrics.ObserveChat(string(t.tmpl.Mode), t.adapter.Name(), true, len(t.sources), time.Since(t.started))
}

// cancelled applies the cancellation policy: keep produced text as a partial answer, or roll
// the turn back when nothing was produced.
func (o *Orchestrator) cancelled(ctx context.Context, t *turn, s *Session) {
	s.err = ctx.Err()
	o.metrics.ChatFailed("cancelled")
	if s.answer.Len() == 0 {
		o.abort(ctx, t)
		return
	}
	if err := o.persist(ctx, t, s.answer.String(), true); err != nil {
		o.logger.Warn("persist partial answer failed", zap.String("conversation_id", t.id), zap.Error(err))
		o.abort(ctx, t)
		return
	}
	o.logger.Debug("partial answer kept", zap.String("conversation_id", t.id), zap.Int("chars", s.answer.Len()))
	t.release()
}

// drain forwards chunks to the session until the backend ends, fails, or ctx is cancelled.
// Only delivered text counts toward the answer.
func (o *Orchestrator) drain(ctx context.Context, ch <-chan backend.Chunk, s *Session) error {
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			if c.Err != nil {
				return c.Err
			}
			if c.Text == "" {
				continue
			}
			select {
			case s.chunks <- c.Text:
				s.answer.WriteString(c.Text)
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
