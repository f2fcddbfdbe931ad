package store

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/quartune/stellar-insights/replay"
)

// GetRangeWithRetry wraps EventStore.GetRange with bounded exponential
// backoff, per spec.md §7: storage errors during a range read are
// retried before surfacing as a fatal StorageError to the session.
// maxRetries bounds the number of additional attempts after the first.
func GetRangeWithRetry(ctx context.Context, store EventStore, low, high uint64, filter replay.EventFilter, limit *int, maxRetries int) ([]replay.ContractEvent, error) {
	var events []replay.ContractEvent
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries))

	op := func() error {
		var err error
		events, err = store.GetRange(ctx, low, high, filter, limit)
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, &replay.StorageError{Op: "get_range", Err: err}
	}
	return events, nil
}
