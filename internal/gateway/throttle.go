package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled limits the call rate to an underlying Gateway. Waiting for a
// token honors ctx, so a caller's timeout also bounds time spent queued.
type Throttled struct {
	next    Gateway
	limiter *rate.Limiter
}

func NewThrottled(next Gateway, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttled) CreateIntent(ctx context.Context, p CreateParams) (*Intent, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.CreateIntent(ctx, p)
}

func (t *Throttled) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.RetrieveIntent(ctx, intentID)
}

func (t *Throttled) CaptureIntent(ctx context.Context, intentID string) (*Intent, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.CaptureIntent(ctx, intentID)
}

func (t *Throttled) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.CancelIntent(ctx, intentID)
}
