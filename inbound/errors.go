package inbound

import (
	"net/http"

	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	return core.NewError(message, category, code, textCode, metadata)
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	return core.WrapError(source, category, message, code, textCode, metadata)
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ErrorBadInput,
		metadata,
	)
}

func inboundInternal(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.ErrorInternal,
		metadata,
	)
}

func handlerFailed(source error, metadata map[string]any) error {
	return inboundWrapError(
		source,
		goerrors.CategoryOperation,
		"inbound: handler execution failed",
		http.StatusInternalServerError,
		core.ErrorHandlerFailed,
		metadata,
	)
}
