package virology

import (
	"context"
	"time"

	"github.com/imrishuroy/virology-token-service/internal/clock"
	"github.com/imrishuroy/virology-token-service/internal/throttle"
)

// ThrottledExchanger gives every exchange, successful or not, the same minimum latency so
// response times say nothing about whether a token exists.
type ThrottledExchanger struct {
	inner Exchanger
	clock clock.Clock
	delay time.Duration
}

// NewThrottledExchanger wraps inner with a latency floor of delay.
func NewThrottledExchanger(inner Exchanger, c clock.Clock, delay time.Duration) *ThrottledExchanger {
	return &ThrottledExchanger{
		inner: inner,
		clock: c,
		delay: delay,
	}
}

func (t *ThrottledExchanger) Exchange(ctx context.Context, ctaToken string) (ExchangeOutcome, error) {
	return throttle.Run(ctx, t.clock, t.delay, func() (ExchangeOutcome, error) {
		return t.inner.Exchange(ctx, ctaToken)
	})
}

var _ Exchanger = (*ThrottledExchanger)(nil)
