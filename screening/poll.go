package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/presagetech/smartspectra-go/screening/network"
	"github.com/presagetech/smartspectra-go/screening/result"
)

var errNotReady = errors.New("result not ready")

// waitForResult polls the result endpoint until it returns a document carrying the result marker.
// Responses that are empty, not JSON or lack the marker count as not ready; a failed call ends the wait.
func (o *Orchestrator) waitForResult(ctx context.Context, api network.API, resultID string) ([]byte, error) {
	attempts := o.config.RetrieveAttempts

	if err := sleep(ctx, 2*o.config.RetrieveDelay); err != nil {
		return nil, fmt.Errorf("wait for result: %w", err)
	}

	var doc []byte
	err := retry.Times(uint(attempts - 1)).Wait(o.config.RetrieveDelay).TryWithAbort(func(attempt uint) (error, bool) {
		if err := ctx.Err(); err != nil {
			return err, true
		}

		output, err := api.RetrieveResult(ctx, resultID)
		if err != nil {
			return fmt.Errorf("retrieve result (attempt %d/%d): %w", attempt+1, attempts, err), true
		}
		if !result.IsReady(output, o.config.ResultMarker) {
			o.logger.Debugf("Retrieve attempt %d/%d: result not ready", attempt+1, attempts)
			return errNotReady, false
		}

		o.logger.Debugf("Retrieve attempt %d/%d: result ready", attempt+1, attempts)
		doc = output
		return nil, false
	})
	if errors.Is(err, errNotReady) {
		return nil, fmt.Errorf("%w after %d attempts", ErrResultTimeout, attempts)
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
