package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"
)

// ErrorResponse is the form used for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondError writes the status carried by err and returns it. Client errors
// are prefixed so the processor dashboard shows them as webhook failures.
func RespondError(ctx *gin.Context, err error) int {
	status := core.StatusCode(err)
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		ctx.JSON(status, ErrorResponse{Error: "Webhook Error: " + errorMessage(err)})
		return status
	}
	if status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}
	ctx.JSON(status, ErrorResponse{Error: errorMessage(err)})
	return status
}

func errorMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.Message) != "" {
		return strings.TrimSpace(rich.Message)
	}
	return err.Error()
}

func bodyTooLarge(limit int64) error {
	return core.NewError(
		"request body exceeds limit",
		goerrors.CategoryBadInput,
		http.StatusRequestEntityTooLarge,
		core.ErrorBadInput,
		map[string]any{"limit_bytes": limit},
	)
}

func missingSignature(header string) error {
	return core.NewError(
		"no "+strings.ToLower(header)+" header value was provided",
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ErrorMalformedSignatureHeader,
		map[string]any{"header": header},
	)
}

func readFailed(err error) error {
	return core.WrapError(
		err,
		goerrors.CategoryBadInput,
		"read request body",
		http.StatusBadRequest,
		core.ErrorBadInput,
		nil,
	)
}
