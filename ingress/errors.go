package ingress

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-billing-sync/core"
)

// Invalid signatures are rejected with 400 before any ledger write. The
// endpoint has no authenticated caller, so a 401 challenge is meaningless.
func newSignatureError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryAuth, "ingress: webhook signature rejected").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BillingErrorSignatureInvalid)
}

func newMalformedPayloadError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "ingress: webhook payload rejected").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BillingErrorBadInput)
}
