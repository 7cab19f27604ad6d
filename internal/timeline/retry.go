package timeline

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
)

// retry runs fn until it succeeds, returns a non transient error, or the
// store retry budget is spent. Only database.ErrUnavailable is retried.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxInterval = 20 * s.retryInterval

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrUnavailable) {
			return backoff.Permanent(err)
		}
		s.log.WarnContext(ctx, "store unavailable, retrying", "op", op, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.storeRetries), ctx))
}
