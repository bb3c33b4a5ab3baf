package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/query"
)

// Retrier runs an operation until it succeeds, fails permanently or runs out of attempts.
type Retrier struct {
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	clock       clockwork.Clock
}

func NewRetrier(config config.Execution, clock clockwork.Clock) Retrier {
	return Retrier{
		maxAttempts: max(config.MaxAttempts, 1),
		newBackOff: func() backoff.BackOff {
			return &LinearBackOff{Initial: config.RetryDelay, Step: config.RetryDelayInc}
		},
		clock: clock,
	}
}

// WithBackOff returns a copy of the retrier that waits between attempts according to the given
// policy. newBackOff is called once per Do.
func (retrier Retrier) WithBackOff(newBackOff func() backoff.BackOff) Retrier {
	retrier.newBackOff = newBackOff
	return retrier
}

// Do calls op until it returns nil, and returns the number of attempts made along with the last
// error. Only errors for which query.IsTransient holds are retried. Errors wrapped with
// backoff.Permanent are unwrapped and returned at once. Waits between attempts end early if ctx is
// done.
func (retrier Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (uint, error) {
	delays := retrier.newBackOff()
	delays.Reset()

	for attempt := uint(1); ; attempt++ {
		err := op(ctx)
		if err == nil {
			return attempt, nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return attempt, permanent.Err
		}
		if !query.IsTransient(err) || attempt >= retrier.maxAttempts || ctx.Err() != nil {
			return attempt, err
		}

		delay := delays.NextBackOff()
		if delay == backoff.Stop {
			return attempt, err
		}

		log.Debug(
			"retrying after transient failure",
			slog.Uint64("attempt", uint64(attempt)),
			slog.Duration("delay", delay),
			slog.String("cause", err.Error()),
		)

		select {
		case <-ctx.Done():
			return attempt, err
		case <-retrier.clock.After(delay):
		}
	}
}

// LinearBackOff waits Initial before the first retry, and Step longer before each one after it.
type LinearBackOff struct {
	Initial time.Duration
	Step    time.Duration
	next    time.Duration
}

func (linear *LinearBackOff) NextBackOff() time.Duration {
	delay := linear.next
	linear.next += linear.Step
	return delay
}

func (linear *LinearBackOff) Reset() {
	linear.next = linear.Initial
}
