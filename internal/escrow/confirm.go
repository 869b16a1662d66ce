package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ConfirmationPolicy bounds how long a submitted group is polled.
type ConfirmationPolicy struct {
	PollInterval time.Duration
	MaxRounds    uint64
}

// DefaultConfirmationPolicy polls once a second for 30 rounds.
var DefaultConfirmationPolicy = ConfirmationPolicy{PollInterval: time.Second, MaxRounds: 30}

var errStillPending = errors.New("transaction still pending")

// WaitForConfirmation polls src at a fixed interval until txID is confirmed.
// A pool error is a rejection. Running out of rounds, or losing the context,
// yields ErrConfirmationTimeout: the transaction may still land, so callers
// must re-check instead of assuming failure.
func WaitForConfirmation(ctx context.Context, src ConfirmationSource, txID string, policy ConfirmationPolicy) (Confirmation, error) {
	if policy.PollInterval <= 0 {
		policy.PollInterval = DefaultConfirmationPolicy.PollInterval
	}
	if policy.MaxRounds == 0 {
		policy.MaxRounds = DefaultConfirmationPolicy.MaxRounds
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.PollInterval), policy.MaxRounds),
		ctx,
	)

	var confirmed Confirmation
	err := backoff.Retry(func() error {
		c, err := src.PendingConfirmation(ctx, txID)
		if err != nil {
			return err
		}
		if c.PoolError != "" {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrSubmissionRejected, c.PoolError))
		}
		if c.ConfirmedRound == 0 {
			return errStillPending
		}
		confirmed = c
		return nil
	}, b)
	switch {
	case err == nil:
		return confirmed, nil
	case errors.Is(err, ErrSubmissionRejected):
		return Confirmation{}, err
	default:
		return Confirmation{}, fmt.Errorf("%w: %s after %d rounds: %v", ErrConfirmationTimeout, txID, policy.MaxRounds, err)
	}
}
