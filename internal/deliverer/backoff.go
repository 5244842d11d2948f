package deliverer

import (
	"time"

	"github.com/cenkalti/backoff"
)

// maxElapsed is spec.md §4.7's retry budget: once the sum of a queue
// entry's retry intervals exceeds this, the caller marks the actor
// unreachable instead of scheduling another attempt.
const maxElapsed = 72 * time.Hour

// retrySchedule builds the exponential backoff ladder from spec.md §4.7:
// base 30s, multiplier 2, jitter ±25%, max interval 6h. MaxElapsedTime is
// left at its zero value (disabled) because ExponentialBackOff measures
// elapsed time from wall-clock Reset(), which NextRetryDelay calls and
// drains in the same instant — the library's own Stop signal would never
// fire. NextRetryDelay tracks the 72h budget itself against the sum of
// intervals the schedule actually produces.
func retrySchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxInterval = 6 * time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
