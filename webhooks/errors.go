package webhooks

import (
	"net/http"

	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"
)

func malformedHeaderError(message string) error {
	return core.NewError(
		"webhooks: "+message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ErrorMalformedSignatureHeader,
		nil,
	)
}

func signatureMismatchError() error {
	return core.NewError(
		"webhooks: no signatures found matching the expected signature for payload",
		goerrors.CategoryAuth,
		http.StatusBadRequest,
		core.ErrorSignatureMismatch,
		nil,
	)
}

func toleranceError(timestamp int64, tolerance int64) error {
	return core.NewError(
		"webhooks: timestamp outside the tolerance zone",
		goerrors.CategoryAuth,
		http.StatusBadRequest,
		core.ErrorTimestampOutsideTolerance,
		map[string]any{"timestamp": timestamp, "tolerance_seconds": tolerance},
	)
}

func malformedPayloadError(source error, message string) error {
	return core.WrapError(
		source,
		goerrors.CategoryBadInput,
		"webhooks: "+message,
		http.StatusBadRequest,
		core.ErrorMalformedPayload,
		nil,
	)
}

// IsVerificationError reports whether err was raised while checking the
// signature header or decoding the payload.
func IsVerificationError(err error) bool {
	for _, code := range []string{
		core.ErrorMalformedSignatureHeader,
		core.ErrorSignatureMismatch,
		core.ErrorTimestampOutsideTolerance,
		core.ErrorMalformedPayload,
	} {
		if core.HasTextCode(err, code) {
			return true
		}
	}
	return false
}
