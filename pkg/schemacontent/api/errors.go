package api

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/render"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"go.uber.org/zap"
)

// statusClientClosedRequest is the nginx convention for a request the client abandoned.
const statusClientClosedRequest = 499

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps a repository error onto an HTTP status and error code.
func classify(err error) (int, string) {
	var (
		validation  *schemacontent.ValidationError
		unknown     *schemacontent.UnknownFieldError
		mismatch    *schemacontent.TypeMismatchError
		unsupported *schemacontent.UnsupportedQueryError
		syntax      *query.SyntaxError
		conflict    *schemacontent.VersionConflictError
		cancelled   *schemacontent.CancelledError
		unavailable *schemacontent.StorageUnavailableError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &unknown), errors.As(err, &mismatch),
		errors.As(err, &unsupported), errors.As(err, &syntax), errors.Is(err, schemacontent.ErrInvalidStatus):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, schemacontent.ErrSchemaNotFound):
		return http.StatusNotFound, "schema_not_found"
	case errors.Is(err, schemacontent.ErrContentNotFound):
		return http.StatusNotFound, "content_not_found"
	case errors.As(err, &conflict):
		return http.StatusPreconditionFailed, "version_conflict"
	case errors.Is(err, schemacontent.ErrContentExists):
		return http.StatusConflict, "content_exists"
	case errors.Is(err, schemacontent.ErrContentArchived):
		return http.StatusConflict, "content_archived"
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "timeout"
		}
		return statusClientClosedRequest, "cancelled"
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err as an ErrorBody. Server-side failures are logged
// and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, code := classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		message = "An internal server error occurred"
	} else {
		logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	}})
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorBody{Error: ErrorDetail{
		Code:      "bad_request",
		Message:   message,
		RequestID: RequestID(r.Context()),
	}})
}
