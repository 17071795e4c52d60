// Package chat runs chat turns: it resolves the conversation and mode, retrieves knowledge,
// builds the prompt, dispatches to the active backend and persists the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/conversation"
	"github.com/hyperjump/sensei/internal/metrics"
	"github.com/hyperjump/sensei/internal/mode"
	"github.com/hyperjump/sensei/internal/models"
)

// State is the position of one turn in its lifecycle.
type State string

const (
	StateReceived     State = "received"
	StateModeResolved State = "mode_resolved"
	StateContextBuilt State = "context_built"
	StateDispatched   State = "dispatched"
	StateCompleted    State = "completed"
	StateStreaming    State = "streaming"
	StateFailed       State = "failed"
)

// Request is one user message. UseKnowledgeBase defaults to true when nil.
type Request struct {
	Message          string `json:"message"`
	Mode             string `json:"mode"`
	ConversationID   string `json:"conversation_id,omitempty"`
	UserID           string `json:"user_id,omitempty"`
	UseKnowledgeBase *bool  `json:"use_knowledge_base,omitempty"`
}

// Response is a completed turn.
type Response struct {
	Answer               string      `json:"answer"`
	ConversationID       string      `json:"conversation_id"`
	Mode                 models.Mode `json:"mode"`
	Sources              []string    `json:"sources"`
	KnowledgeSourcesUsed int         `json:"knowledge_sources_used"`
}

// Status describes the active backend.
type Status struct {
	Configured     bool          `json:"configured"`
	Backend        string        `json:"backend,omitempty"`
	Model          string        `json:"model,omitempty"`
	AvailableModes []models.Mode `json:"available_modes"`
}

type adapterRef struct {
	adapter backend.Adapter
}

// Orchestrator composes the conversation store, mode templates, knowledge retrieval and the
// active backend.
type Orchestrator struct {
	store     *conversation.Store
	retriever backend.Searcher
	active    atomic.Pointer[adapterRef]
	cfg       config.BackendConfig
	topK      int
	metrics   *metrics.Metrics
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRetriever enables knowledge retrieval with topK snippets per turn.
func WithRetriever(r backend.Searcher, topK int) Option {
	return func(o *Orchestrator) {
		o.retriever = r
		if topK > 0 {
			o.topK = topK
		}
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator returns an Orchestrator using adapter until SetBackend swaps it. A nil adapter
// leaves the orchestrator unconfigured; turns then fail with ErrBackendUnavailable.
func NewOrchestrator(store *conversation.Store, adapter backend.Adapter, cfg config.BackendConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		cfg:    cfg,
		topK:   3,
		logger: zap.NewNop(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	if adapter != nil {
		o.active.Store(&adapterRef{adapter: adapter})
	}
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetBackend atomically replaces the active adapter. Turns already dispatched keep the adapter
// they started with; conversation history is untouched.
func (o *Orchestrator) SetBackend(a backend.Adapter) {
	if a == nil {
		o.active.Store(nil)
		return
	}
	o.active.Store(&adapterRef{adapter: a})
	o.logger.Info("active backend switched", zap.String("backend", a.Name()), zap.String("model", a.Model()))
}

// Backend returns the active adapter, or nil.
func (o *Orchestrator) Backend() backend.Adapter {
	if ref := o.active.Load(); ref != nil {
		return ref.adapter
	}
	return nil
}

// Status reports the active backend and the supported modes.
func (o *Orchestrator) Status() Status {
	st := Status{AvailableModes: mode.Modes()}
	if a := o.Backend(); a != nil {
		st.Configured = true
		st.Backend = a.Name()
		st.Model = a.Model()
	}
	return st
}

// History returns the ordered messages of conversation id.
func (o *Orchestrator) History(ctx context.Context, id string) ([]models.Message, error) {
	return o.store.History(ctx, id)
}

// Clear empties conversation id once any turn in flight on it has finished. Unknown ids succeed.
func (o *Orchestrator) Clear(ctx context.Context, id string) error {
	release, err := o.store.Acquire(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			return nil
		}
		return err
	}
	defer release()
	return o.store.Clear(ctx, id)
}

// turn carries one request through its states.
type turn struct {
	id      string
	created bool
	message string
	tmpl    mode.Template
	adapter backend.Adapter
	req     *backend.Request
	sources []models.KnowledgeSnippet
	release func()
	state   State
	started time.Time
	retried bool // the turn's single retry is spent
}

func (o *Orchestrator) advance(t *turn, s State) {
	t.state = s
	o.logger.Debug("chat turn state",
		zap.String("conversation_id", t.id),
		zap.String("state", string(s)))
}

// prepare validates the request, then pins the conversation and builds the prompt. Validation
// runs before anything is created so a rejected request leaves no trace.
func (o *Orchestrator) prepare(ctx context.Context, req *Request) (*turn, error) {
	t := &turn{state: StateReceived, started: time.Now()}
	t.message = strings.TrimSpace(req.Message)
	if t.message == "" {
		return nil, fmt.Errorf("%w: message is required", models.ErrInvalidArgument)
	}
	tmpl, err := mode.Resolve(req.Mode)
	if err != nil {
		return nil, err
	}
	t.tmpl = tmpl
	o.advance(t, StateModeResolved)

	t.adapter = o.Backend()
	if t.adapter == nil {
		return nil, fmt.Errorf("%w: no backend configured", models.ErrBackendUnavailable)
	}

	if req.ConversationID == "" {
		conv, err := o.store.Create(ctx, tmpl.Mode, req.UserID)
		if err != nil {
			return nil, err
		}
		t.id = conv.ID
		t.created = true
	} else {
		t.id = req.ConversationID
	}
	release, err := o.store.Acquire(ctx, t.id)
	if err != nil {
		o.discard(ctx, t)
		return nil, err
	}
	t.release = release

	history, err := o.store.History(ctx, t.id)
	if err != nil {
		o.abort(ctx, t)
		return nil, err
	}

	var snippets []models.KnowledgeSnippet
	if o.retriever != nil && (req.UseKnowledgeBase == nil || *req.UseKnowledgeBase) {
		snippets, err = o.retriever.Search(ctx, t.message, o.topK)
		if err != nil {
			// Retrieval is an enhancement; the turn proceeds without context.
			o.logger.Warn("knowledge retrieval failed", zap.String("conversation_id", t.id), zap.Error(err))
			snippets = nil
		}
	}
	t.req, t.sources = buildPrompt(tmpl, history, snippets, t.message, o.cfg.ContextTokens)
	o.advance(t, StateContextBuilt)
	return t, nil
}

// discard removes a conversation this turn created. It runs after failures, possibly with a
// cancelled ctx, so it detaches from cancellation.
func (o *Orchestrator) discard(ctx context.Context, t *turn) {
	if !t.created {
		return
	}
	if err := o.store.Discard(context.WithoutCancel(ctx), t.id); err != nil {
		o.logger.Warn("discard conversation failed", zap.String("conversation_id", t.id), zap.Error(err))
	}
}

// abort rolls back a failed turn: the store ends up exactly as before the request.
func (o *Orchestrator) abort(ctx context.Context, t *turn) {
	o.advance(t, StateFailed)
	o.discard(ctx, t)
	if t.release != nil {
		t.release()
	}
}

// persist appends the user message and the answer as one pair.
func (o *Orchestrator) persist(ctx context.Context, t *turn, answer string, partial bool) error {
	now := time.Now()
	user := models.Message{Role: models.RoleUser, Content: t.message, Timestamp: now}
	assistant := models.Message{
		Role:      models.RoleAssistant,
		Content:   answer,
		Sources:   titles(t.sources),
		Partial:   partial,
		Timestamp: now,
	}
	return o.store.Append(context.WithoutCancel(ctx), t.id, t.tmpl.Mode, user, assistant)
}

func (o *Orchestrator) response(t *turn, answer string) *Response {
	return &Response{
		Answer:               answer,
		ConversationID:       t.id,
		Mode:                 t.tmpl.Mode,
		Sources:              titles(t.sources),
		KnowledgeSourcesUsed: len(t.sources),
	}
}

// Chat runs one non-streaming turn.
func (o *Orchestrator) Chat(ctx context.Context, req *Request) (*Response, error) {
	t, err := o.prepare(ctx, req)
	if err != nil {
		o.metrics.ChatFailed(errorType(err))
		return nil, err
	}

	o.advance(t, StateDispatched)
	var answer string
	err = o.withRetry(ctx, t, func(ctx context.Context) error {
		cctx, cancel := o.backendContext(ctx)
		defer cancel()
		a, err := t.adapter.Complete(cctx, t.req)
		answer = a
		return err
	})
	if err == nil {
		err = o.persist(ctx, t, answer, false)
	}
	if err != nil {
		o.abort(ctx, t)
		o.metrics.ChatFailed(errorType(err))
		o.logger.Warn("chat turn failed", zap.String("conversation_id", t.id), zap.Error(err))
		return nil, err
	}
	t.release()
	o.advance(t, StateCompleted)
	o.metrics.ObserveChat(string(t.tmpl.Mode), t.adapter.Name(), false, len(t.sources), time.Since(t.started))
	return o.response(t, answer), nil
}

func (o *Orchestrator) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, o.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// withRetry runs call and retries it once after the backoff when it fails with
// ErrBackendUnavailable and the caller is still waiting. A turn gets one retry in total.
func (o *Orchestrator) withRetry(ctx context.Context, t *turn, call func(context.Context) error) error {
	err := o.classify(ctx, call(ctx))
	if err == nil || !errors.Is(err, models.ErrBackendUnavailable) || ctx.Err() != nil || t.retried {
		return err
	}
	t.retried = true
	o.metrics.Retried()
	o.logger.Debug("retrying backend call", zap.Duration("backoff", o.cfg.RetryBackoff), zap.Error(err))
	if serr := o.sleep(ctx, o.cfg.RetryBackoff); serr != nil {
		return serr
	}
	return o.classify(ctx, call(ctx))
}

// classify maps a backend failure onto the error taxonomy. Caller cancellation stays a context
// error; anything else becomes ErrBackendUnavailable.
func (o *Orchestrator) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, models.ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrBackendUnavailable, err)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidMode):
		return "invalid_mode"
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, models.ErrConversationNotFound):
		return "conversation_not_found"
	case errors.Is(err, models.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal"
	}
}
