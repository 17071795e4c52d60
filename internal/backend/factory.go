package backend

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/models"
)

type factoryOptions struct {
	logger     *zap.Logger
	httpClient *http.Client
	tools      []Tool
	limiter    *rate.Limiter
}

// Option configures New.
type Option func(*factoryOptions)

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *factoryOptions) { o.logger = l }
}

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *factoryOptions) { o.httpClient = c }
}

// WithTools sets the tools offered by the framework backend.
func WithTools(tools ...Tool) Option {
	return func(o *factoryOptions) { o.tools = append(o.tools, tools...) }
}

// WithLimiter shares one limiter across adapters instead of building one from cfg.RateLimit.
// Switching the active backend then keeps the same outbound budget.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *factoryOptions) { o.limiter = l }
}

// NewLimiter builds the limiter described by cfg, or nil when limiting is off.
func NewLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// New builds the adapter of the given kind. Unknown kinds fail with ErrInvalidArgument.
func New(kind string, cfg config.BackendConfig, opts ...Option) (Adapter, error) {
	o := &factoryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.limiter == nil {
		o.limiter = NewLimiter(cfg.RateLimit)
	}

	switch kind {
	case KindDirectAPI, KindNativeLight:
		a, err := newModelAdapter(kind, cfg, o)
		if err != nil {
			return nil, err
		}
		return RateLimited(a, o.limiter), nil
	case KindFramework:
		inner, err := newModelAdapter(cfg.Framework.Inner, cfg, o)
		if err != nil {
			return nil, fmt.Errorf("framework inner backend: %w", err)
		}
		// Limit the inner adapter so every tool round counts against the budget.
		return NewFramework(RateLimited(inner, o.limiter), cfg.Framework.MaxToolRounds, o.tools, o.logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", models.ErrInvalidArgument, kind)
	}
}

func newModelAdapter(kind string, cfg config.BackendConfig, o *factoryOptions) (Adapter, error) {
	switch kind {
	case KindDirectAPI:
		return NewDirectAPI(cfg.OpenAI, o.httpClient, o.logger), nil
	case KindNativeLight:
		return NewNativeLight(cfg.Ollama, o.httpClient, o.logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", models.ErrInvalidArgument, kind)
	}
}
