package sqlstore

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"
)

func storeNotConfigured(name string) error {
	return core.NewError(
		"sqlstore: "+name+" is not configured",
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.ErrorInternal,
		nil,
	)
}

func storeBadInput(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput, metadata)
}

func storeNotFound(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryNotFound, http.StatusNotFound, core.ErrorNotFound, metadata)
}

func storeConflict(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryConflict, http.StatusConflict, core.ErrorConflict, metadata)
}

func storeWrap(err error, message string, metadata map[string]any) error {
	return core.WrapError(err, goerrors.CategoryInternal, message, http.StatusInternalServerError, core.ErrorInternal, metadata)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
