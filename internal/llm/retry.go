package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/abhisek/skillissue/internal/logger"
)

// RetryProvider retries transient failures with capped exponential backoff.
// Invalid responses get exactly one extra attempt.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
	log    *logger.Logger
	sleep  func(context.Context, time.Duration) error
}

// WithRetry wraps p with retry logic. log may be nil.
func WithRetry(p Provider, cfg RetryConfig, log *logger.Logger) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryProvider{
		inner:  p,
		config: cfg,
		log:    logger.OrNop(log).With("component", "llm-retry"),
		sleep:  sleepCtx,
	}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var err error
	invalidSeen := false

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		var resp *Response
		resp, err = r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		switch Classify(err) {
		case ClassFatal:
			return nil, err
		case ClassInvalid:
			if invalidSeen {
				return nil, err
			}
			invalidSeen = true
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		wait := Backoff(r.config, attempt, err, rand.Float64())
		r.log.Warn("llm attempt failed, retrying",
			"purpose", PurposeFrom(ctx), "attempt", attempt, "wait", wait, "error", err)
		if serr := r.sleep(ctx, wait); serr != nil {
			return nil, serr
		}
	}
	return nil, err
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// Backoff returns the wait after the given 1-based failed attempt. A rate
// limit with a RetryAfter hint wins over the exponential schedule. jitter
// is a sample from [0, 1) and spreads the wait by ±20%.
func Backoff(cfg RetryConfig, attempt int, err error, jitter float64) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(cfg.InitialWait) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxWait > 0 && wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}
	wait += wait * 0.2 * (2*jitter - 1)
	return time.Duration(max(wait, 0))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
