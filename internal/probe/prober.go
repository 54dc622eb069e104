package probe

import (
	"context"
	"errors"
	"time"

	"github.com/macrat/outpost/internal/outposterr"
	api "github.com/macrat/outpost/lib-outpost"
)

// ErrInvalidAttempts means the Prober is configured to try zero times.
var ErrInvalidAttempts = errors.New("max attempts must be 1 or more")

// Prober retries double-samples until it gets a complete and consistent Outcome.
type Prober struct {
	Sampler Sampler

	// RetryDelay is the sleep duration between attempts.
	RetryDelay time.Duration

	// Attempts is the maximum number of attempts.
	Attempts uint
}

// Probe samples the target up to Attempts times.
//
// It returns the first complete and consistent Outcome with nil error.
// If no attempt succeeded, it returns the Outcome and the error of the last attempt.
// The caller should treat that as an inconclusive probe.
func (p Prober) Probe(ctx context.Context, t Target) (Outcome, error) {
	if p.Attempts == 0 {
		return Outcome{}, outposterr.New(api.ErrInvalidConfig, ErrInvalidAttempts, "")
	}

	var last Outcome
	var lastErr error

	for i := uint(1); i <= p.Attempts; i++ {
		if i > 1 {
			if err := sleep(ctx, p.RetryDelay); err != nil {
				return last, err
			}
		}

		last, lastErr = p.Sampler.Sample(ctx, t)
		last.Attempt = int(i)
		if lastErr == nil {
			lastErr = last.Check()
		}
		if lastErr == nil {
			return last, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return last, lastErr
}
