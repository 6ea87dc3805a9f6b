// Error handling utilities for the management API.

package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackycchen/api-mock-platform/pkg/httputil"
	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// Safe error messages for client responses.
const (
	ErrMsgInternalError    = "An internal error occurred"
	ErrMsgInvalidJSON      = "Invalid JSON in request body"
	ErrMsgValidationFailed = "Request validation failed"
	ErrMsgNotFound         = "Resource not found"
	ErrMsgConflict         = "Path pattern already exists in this project"
	ErrMsgNotConfigured    = "This resource is not configured"
)

// fieldDetail names the offending field of a validation error.
type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeStoreError maps rule store and call log errors to responses.
// Unknown errors are logged and reported generically.
func writeStoreError(w http.ResponseWriter, log *slog.Logger, err error, operation string, details ...any) {
	var verr *rule.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", verr.Error(),
			fieldDetail{Field: verr.Field, Message: verr.Message})
	case errors.Is(err, rule.ErrDuplicatePattern):
		httputil.WriteConflict(w, "duplicate_pattern", ErrMsgConflict)
	case errors.Is(err, rule.ErrNotFound), errors.Is(err, requestlog.ErrNotFound):
		httputil.WriteNotFound(w, "not_found", ErrMsgNotFound)
	default:
		args := []any{"operation", operation, "error", err}
		args = append(args, details...)
		log.Error("operation failed", args...)
		httputil.WriteInternalError(w, "internal_error", ErrMsgInternalError)
	}
}

// writeJSONError reports a malformed request body. Mode parse failures are
// surfaced because they are the common mistake.
func writeJSONError(w http.ResponseWriter, log *slog.Logger, err error) {
	log.Debug("JSON parsing failed", "error", err)
	httputil.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_json", ErrMsgInvalidJSON, err.Error())
}
