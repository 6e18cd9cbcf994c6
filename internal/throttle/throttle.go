// Package throttle enforces a minimum response latency so that callers cannot tell
// outcomes apart by timing.
package throttle

import (
	"context"
	"time"

	"github.com/imrishuroy/virology-token-service/internal/clock"
)

// DefaultDuration is the latency floor applied to CTA exchanges.
const DefaultDuration = time.Second

// Run calls fn and does not return before d has elapsed since entry, whatever fn returned.
// A cancelled ctx ends the wait early; fn's result is still returned unchanged.
func Run[T any](ctx context.Context, c clock.Clock, d time.Duration, fn func() (T, error)) (T, error) {
	deadline := c.Now().Add(d)

	v, err := fn()

	if remaining := deadline.Sub(c.Now()); remaining > 0 {
		// the client may have gone away; the wait is best effort then
		_ = c.Sleep(ctx, remaining)
	}
	return v, err
}
