package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BillingErrorBadInput           = "BILLING_BAD_INPUT"
	BillingErrorSignatureInvalid   = "BILLING_SIGNATURE_INVALID"
	BillingErrorValidationFailed   = "BILLING_VALIDATION_FAILED"
	BillingErrorDependencyNotFound = "BILLING_DEPENDENCY_NOT_FOUND"
	BillingErrorProviderCallFailed = "BILLING_PROVIDER_CALL_FAILED"
	BillingErrorEventNotFound      = "BILLING_EVENT_NOT_FOUND"
	BillingErrorConflict           = "BILLING_CONFLICT"
	BillingErrorInternal           = "BILLING_INTERNAL_ERROR"
)

type ErrorMapper func(err error) *goerrors.Error

// DefaultErrorMapper normalizes any error into the billing error envelope,
// assigning category, HTTP code, and text code at the call boundary rather
// than through cross-cutting interception.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBillingErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newBillingError(err.Error(), goerrors.CategoryAuth, BillingErrorSignatureInvalid)
	case strings.Contains(msg, "not found"):
		return newBillingError(err.Error(), goerrors.CategoryNotFound, BillingErrorDependencyNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newBillingError(err.Error(), goerrors.CategoryBadInput, BillingErrorBadInput)
	case strings.Contains(msg, "provider"):
		return newBillingError(err.Error(), goerrors.CategoryOperation, BillingErrorProviderCallFailed)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBillingErrorEnvelope(mapped)
}

// NewProviderCallError wraps a failed outbound provider call. These are
// retryable; the queue's backoff governs re-attempts.
func NewProviderCallError(err error, operation string, externalID string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "core: provider "+operation+" failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(BillingErrorProviderCallFailed).
		WithMetadata(map[string]any{
			"operation":   operation,
			"external_id": externalID,
		})
}

// NewValidationError marks a payload as malformed. Validation failures are
// terminal: the ledger entry is failed without further automatic retry.
func NewValidationError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(BillingErrorValidationFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// NewDependencyNotFoundError surfaces a missing referenced entity on a
// synchronous, caller-facing path.
func NewDependencyNotFoundError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(BillingErrorDependencyNotFound)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// IsTerminalProcessingError reports whether a handler failure should not be
// retried by the queue. Only validation failures are terminal; everything
// else is assumed transient.
func IsTerminalProcessingError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryValidation
}

func newBillingError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBillingErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBillingErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = billingHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBillingTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBillingTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return BillingErrorBadInput
	case goerrors.CategoryValidation:
		return BillingErrorValidationFailed
	case goerrors.CategoryNotFound:
		return BillingErrorDependencyNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BillingErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return BillingErrorConflict
	case goerrors.CategoryOperation:
		return BillingErrorProviderCallFailed
	default:
		return BillingErrorInternal
	}
}

func billingHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusBadRequest
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
