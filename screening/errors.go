package screening

import (
	"context"
	"errors"
	"fmt"

	"github.com/presagetech/smartspectra-go/screening/network"
)

var (
	// ErrNoPayload is returned when an upload is started before a JSON payload was set.
	ErrNoPayload = errors.New("no JSON payload set")
	// ErrCompression wraps failures of compressing the payload.
	ErrCompression = errors.New("compress payload")
	// ErrResultTimeout is returned when the result isn't ready within the retrieve attempts.
	ErrResultTimeout = errors.New("screening result not ready")
	// ErrSuperseded is returned by an attempt that a newer attempt replaced before it started.
	ErrSuperseded = fmt.Errorf("attempt superseded by a newer one: %w", context.Canceled)
)

// Failure classifies why an attempt failed.
type Failure string

// Failure kinds
const (
	FailureNone        Failure = ""
	FailureNoPayload   Failure = "no-payload"
	FailureCompression Failure = "compression"
	FailureNetwork     Failure = "network"
	FailureProtocol    Failure = "protocol"
	FailureTimeout     Failure = "timeout"
	FailureCancelled   Failure = "cancelled"
)

// FailureKind returns the Failure an attempt error belongs to.
func FailureKind(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrNoPayload):
		return FailureNoPayload
	case errors.Is(err, ErrCompression):
		return FailureCompression
	case errors.Is(err, ErrResultTimeout):
		return FailureTimeout
	case errors.Is(err, network.ErrProtocol):
		return FailureProtocol
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	default:
		return FailureNetwork
	}
}
