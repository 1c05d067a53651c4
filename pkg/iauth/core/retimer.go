package core

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retimer is the reconnect-delay source for one connection. It wraps a
// constant backoff rather than reading cfg.ReconnectDelay directly so that
// a future connection could be switched to an exponential policy (e.g.
// backoff.NewExponentialBackOff) without touching scheduleReconnect or
// shortenReconnect.
type retimer struct {
	b *backoff.ConstantBackOff
}

func newRetimer(delay time.Duration) *retimer {
	return &retimer{b: backoff.NewConstantBackOff(delay)}
}

// next returns the delay to wait before the next reconnect attempt.
func (r *retimer) next() time.Duration {
	return r.b.NextBackOff()
}
