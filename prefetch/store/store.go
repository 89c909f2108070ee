// Package store provides artifact stores for the prefetch engine: Postgres
// materialized views and an in-memory stand-in for dry runs and tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownOperation is returned by Execute for operations without a query.
var ErrUnknownOperation = errors.New("unknown operation")

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
