// Package twelvedataadapter exposes the Twelve Data client through the
// engine's QuoteSource contract, gated by a rate limiter.
package twelvedataadapter

import (
	"context"
	"time"

	"quoteengine/internal/provider"
	"quoteengine/internal/provider/ratelimit"
	"quoteengine/internal/provider/twelvedata"
)

type Config struct {
	Name string
	// MaxRequestsPerMinute enables a token bucket when > 0.
	MaxRequestsPerMinute int
	Burst                int
	// MinRequestInterval is used instead of the bucket when no RPM is set.
	MinRequestInterval time.Duration
}

type Adapter struct {
	cfg    Config
	client *twelvedata.Client
	bucket *ratelimit.TokenBucket
	gate   *ratelimit.MinInterval
}

func New(cfg Config, client *twelvedata.Client) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "twelvedata"
	}
	a := &Adapter{cfg: cfg, client: client}
	// Prefer a token bucket with burst when an RPM budget is set, otherwise
	// fall back to simple call spacing.
	if cfg.MaxRequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		a.bucket = ratelimit.NewTokenBucket(float64(cfg.MaxRequestsPerMinute)/60.0, burst)
	} else if cfg.MinRequestInterval > 0 {
		a.gate = &ratelimit.MinInterval{Interval: cfg.MinRequestInterval}
	}
	return a
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) FetchQuote(ctx context.Context, code string) (*provider.Quote, error) {
	if a.bucket != nil {
		if err := a.bucket.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if a.gate != nil {
		if err := a.gate.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return a.client.Quote(ctx, code)
}
