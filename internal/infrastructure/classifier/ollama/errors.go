package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/infrastructure/resilience"
)

func classifyClassifierError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsTransient(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case isQuotaError(statusErr):
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		case statusErr.StatusCode == http.StatusTooManyRequests, statusErr.StatusCode >= 500, statusErr.StatusCode == http.StatusRequestTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// toDomainError maps provider failures onto the kinds the upload pipeline
// turns into user-facing categories.
func toDomainError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case isQuotaError(statusErr):
			return domain.WrapError(domain.ErrQuotaExceeded, operation, err)
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrRateLimited, operation, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if classifyClassifierError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isQuotaError(statusErr *HTTPStatusError) bool {
	body := strings.ToLower(statusErr.Body)
	if statusErr.StatusCode == http.StatusPaymentRequired {
		return true
	}
	if statusErr.StatusCode != http.StatusTooManyRequests && statusErr.StatusCode != http.StatusForbidden {
		return false
	}
	return strings.Contains(body, "quota") || strings.Contains(body, "resource_exhausted") || strings.Contains(body, "billing")
}
