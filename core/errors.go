package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorMalformedSignatureHeader  = "MALFORMED_SIGNATURE_HEADER"
	ErrorSignatureMismatch         = "SIGNATURE_MISMATCH"
	ErrorTimestampOutsideTolerance = "TIMESTAMP_OUTSIDE_TOLERANCE"
	ErrorMalformedPayload          = "MALFORMED_PAYLOAD"
	ErrorUnrecognizedAmount        = "UNRECOGNIZED_AMOUNT"
	ErrorMissingCustomerEmail      = "MISSING_CUSTOMER_EMAIL"
	ErrorEmailProviderFailure      = "EMAIL_PROVIDER_FAILURE"
	ErrorConfigurationMissing      = "CONFIGURATION_MISSING"
	ErrorHandlerFailed             = "HANDLER_FAILED"
	ErrorConflict                  = "CONFLICT"
	ErrorNotFound                  = "NOT_FOUND"
	ErrorBadInput                  = "BAD_INPUT"
	ErrorExternalFailure           = "EXTERNAL_FAILURE"
	ErrorInternal                  = "INTERNAL_ERROR"
)

func NewError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return NewError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func UnrecognizedAmountError(amount int64, currency string) error {
	return NewError(
		"core: amount does not match any configured plan",
		goerrors.CategoryValidation,
		http.StatusUnprocessableEntity,
		ErrorUnrecognizedAmount,
		map[string]any{"amount": amount, "currency": strings.ToLower(strings.TrimSpace(currency))},
	)
}

func ConfigurationMissingError(field string) error {
	return NewError(
		"core: required configuration is missing: "+field,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		ErrorConfigurationMissing,
		map[string]any{"field": field},
	)
}

func badInput(message string, metadata map[string]any) error {
	return NewError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, metadata)
}

func internalError(message string, metadata map[string]any) error {
	return NewError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, metadata)
}

// HasTextCode reports whether err carries a go-errors envelope with the given text code.
func HasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

// StatusCode resolves the HTTP status carried by err, defaulting to 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code > 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}
