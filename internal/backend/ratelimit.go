package backend

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimited gates every call of an Adapter on a shared token bucket.
type rateLimited struct {
	Adapter
	limiter *rate.Limiter
}

// RateLimited wraps a so that each Complete or Stream call first waits on limiter. A wait that
// cannot finish before ctx is done fails with ErrBackendUnavailable.
func RateLimited(a Adapter, limiter *rate.Limiter) Adapter {
	if limiter == nil {
		return a
	}
	return &rateLimited{Adapter: a, limiter: limiter}
}

func (r *rateLimited) Complete(ctx context.Context, req *Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", unavailable(r.Name(), err)
	}
	return r.Adapter.Complete(ctx, req)
}

func (r *rateLimited) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, unavailable(r.Name(), err)
	}
	return r.Adapter.Stream(ctx, req)
}
