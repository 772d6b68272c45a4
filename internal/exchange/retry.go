package exchange

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/internal/engerr"
)

// Retry policy for venue calls. Transient connector errors back off
// exponentially; anything else fails immediately.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 10 * time.Second
	retryMaxElapsed      = 45 * time.Second
)

// WithRetry runs a venue call under the shared backoff policy. Only errors
// classified retryable by engerr are retried; the rest are returned as
// permanent.
func WithRetry(ctx context.Context, log zerolog.Logger, operation string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = retryMaxElapsed

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !engerr.Retryable(err) {
			return backoff.Permanent(err)
		}
		log.Warn().Str("operation", operation).Int("attempt", attempt).
			Err(err).Msg("venue call failed, retrying")
		return err
	}, backoff.WithContext(policy, ctx))
}
