package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// failureKind groups provider errors by how the retry loop treats them.
type failureKind int

const (
	// fatal errors end the call immediately.
	fatal failureKind = iota
	// malformed replies get one repair attempt.
	malformed
	// transient errors are retried until attempts run out.
	transient
)

func classify(err error) failureKind {
	var (
		maxTok  *ErrMaxTokensExceeded
		invalid *ErrInvalidResponse
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fatal
	case errors.As(err, &maxTok):
		return fatal
	case errors.As(err, &invalid):
		return malformed
	default:
		return transient
	}
}

// RetryProvider retries transient failures with capped exponential backoff.
// A reply that fails schema validation is retried once with the rejected
// content and a correction appended to the conversation.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	repaired := false
	wait := r.config.InitialWait

	for attempt := 1; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		switch classify(err) {
		case fatal:
			return nil, err
		case malformed:
			if repaired {
				return nil, err
			}
			repaired = true
			req = withCorrection(req, err)
		}
		if attempt >= r.config.MaxAttempts {
			return nil, err
		}

		delay := jitter(wait)
		var rl *ErrRateLimit
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			delay = rl.RetryAfter
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		wait = r.next(wait)
	}
}

// next grows wait by the multiplier up to MaxWait.
func (r *RetryProvider) next(wait time.Duration) time.Duration {
	grown := time.Duration(float64(wait) * r.config.Multiplier)
	if r.config.MaxWait > 0 && grown > r.config.MaxWait {
		return r.config.MaxWait
	}
	return grown
}

// withCorrection returns a copy of req that shows the model its rejected
// reply and asks for a conforming one.
func withCorrection(req Request, err error) Request {
	var invalid *ErrInvalidResponse
	if !errors.As(err, &invalid) {
		return req
	}
	msgs := slices.Clone(req.Messages)
	if len(invalid.Content) > 0 {
		msgs = append(msgs, Message{Role: RoleAssistant, Content: string(invalid.Content)})
	}
	msgs = append(msgs, Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("That reply was rejected: %v. Answer again with JSON that matches the schema exactly.", invalid.Err),
	})
	req.Messages = msgs
	return req
}

// jitter spreads d by up to 20% either way.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(float64(d)*0.2*(2*rand.Float64()-1))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
