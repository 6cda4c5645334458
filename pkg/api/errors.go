package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/coordinator"
	"github.com/beaconlabs/pulse/pkg/store"
)

// errorCode is one of the six codes an error envelope can carry.
type errorCode string

const (
	codeAuth           errorCode = "AUTH"
	codeNotFound       errorCode = "NOT_FOUND"
	codeValidation     errorCode = "VALIDATION"
	codeConflict       errorCode = "CONFLICT"
	codeBackendTimeout errorCode = "BACKEND_TIMEOUT"
	codeInternal       errorCode = "INTERNAL"
)

// httpStatusFor maps a code to the HTTP status its envelope is served with.
// The envelope's own `code` field is what callers are expected to branch on
// (spec.md §6); the HTTP status is a courtesy for generic HTTP tooling.
func httpStatusFor(code errorCode) int {
	switch code {
	case codeAuth:
		return http.StatusUnauthorized
	case codeNotFound:
		return http.StatusNotFound
	case codeValidation:
		return http.StatusBadRequest
	case codeConflict:
		return http.StatusConflict
	case codeBackendTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to the §6/§7 failure envelope and writes it.
// Unclassified errors are logged at error level and reported as INTERNAL —
// their detail never reaches the client.
func writeError(c *echo.Context, err error) error {
	code, message := classify(err)
	if code == codeInternal {
		slog.Error("api: unhandled error", "error", err)
		message = "internal error"
	}
	return c.JSON(httpStatusFor(code), failResponse{Success: false, Message: message, Code: string(code)})
}

func classify(err error) (errorCode, string) {
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		return codeValidation, ve.Error()
	case errors.Is(err, store.ErrNotFound):
		return codeNotFound, "resource not found"
	case errors.Is(err, store.ErrAlreadyExists), errors.Is(err, store.ErrConflict):
		return codeConflict, err.Error()
	case errors.Is(err, store.ErrInvalidInput):
		return codeValidation, err.Error()
	case errors.Is(err, coordinator.ErrAwaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return codeBackendTimeout, "timed out waiting for extractor completion"
	default:
		return codeInternal, err.Error()
	}
}
