package notify

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"
)

func providerError(provider string, source error, message string, metadata map[string]any) error {
	fields := map[string]any{"provider": provider}
	for key, value := range metadata {
		fields[key] = value
	}
	return core.WrapError(
		source,
		goerrors.CategoryExternal,
		message,
		http.StatusBadGateway,
		core.ErrorEmailProviderFailure,
		fields,
	)
}

func providerStatusError(provider string, status int, body string) error {
	return core.NewError(
		fmt.Sprintf("notify: %s responded with status %d", provider, status),
		goerrors.CategoryExternal,
		http.StatusBadGateway,
		core.ErrorEmailProviderFailure,
		map[string]any{"provider": provider, "status_code": status, "body": truncate(body, 512)},
	)
}

func badMessage(message string) error {
	return core.NewError(message, goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput, nil)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
