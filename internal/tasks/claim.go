package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

var errNotClaimed = errors.New("row not yet claimed")

// claimWait bounds how long a task waits for the scheduler's claiming
// transaction to commit. Backends may start a task before the row it names
// leaves its pre-claim status.
var claimWait = 30 * time.Second

// awaitClaim reloads a row until pending reports false. It returns the last
// load error, or nil once the row is claimed or the wait runs out.
func awaitClaim(ctx context.Context, load func() (pending bool, err error)) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 20 * time.Millisecond
	expBackoff.MaxInterval = time.Second
	expBackoff.MaxElapsedTime = claimWait

	var loadErr error
	operation := func() error {
		pending, err := load()
		if err != nil {
			loadErr = err
			return nil
		}
		if pending {
			return errNotClaimed
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil && !errors.Is(err, errNotClaimed) {
		return err
	}
	return loadErr
}
