package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// markUnavailableIfTransient tags transient transport failures with the
// backend-unavailable kind so callers can tell them from hard errors.
func markUnavailableIfTransient(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrBackendUnavailable) {
		return err
	}
	class := classifyNATSError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrBackendUnavailable, "publish event", err)
	}
	return err
}
