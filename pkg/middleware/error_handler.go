package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wms-platform/replenishment-service/pkg/errors"
)

// APIErrorResponse represents a standardized error response
type APIErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
}

func newAPIErrorResponse(c *gin.Context, appErr *errors.AppError) APIErrorResponse {
	return APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	}
}

// ErrorResponder provides helper methods for sending error responses
type ErrorResponder struct {
	ctx    *gin.Context
	logger *slog.Logger
}

// NewErrorResponder creates a new ErrorResponder
func NewErrorResponder(ctx *gin.Context, logger *slog.Logger) *ErrorResponder {
	return &ErrorResponder{ctx: ctx, logger: logger}
}

// RespondWithError maps err onto an AppError and sends it.
func (r *ErrorResponder) RespondWithError(err error) {
	r.RespondWithAppError(errors.MapDomainError(err))
}

// RespondWithAppError sends an AppError response
func (r *ErrorResponder) RespondWithAppError(appErr *errors.AppError) {
	logError(r.logger, r.ctx, appErr)
	r.ctx.JSON(appErr.HTTPStatus, newAPIErrorResponse(r.ctx, appErr))
}

// RespondNotFound sends a 404 response
func (r *ErrorResponder) RespondNotFound(resource string) {
	r.RespondWithAppError(errors.ErrNotFound(resource))
}

// RespondBadRequest sends a 400 response
func (r *ErrorResponder) RespondBadRequest(message string) {
	r.RespondWithAppError(errors.ErrBadRequest(message))
}

// RespondValidationError sends a validation error response
func (r *ErrorResponder) RespondValidationError(message string, fields map[string]string) {
	r.RespondWithAppError(errors.ErrValidationWithFields(message, fields))
}

// RespondBindingError reports a ShouldBindJSON failure, with per-field
// messages when the validator produced them.
func (r *ErrorResponder) RespondBindingError(err error) {
	if fields := ValidationErrorFormatter(err); len(fields) > 0 {
		r.RespondValidationError("validation failed", fields)
		return
	}
	r.RespondWithAppError(errors.ErrValidation("invalid request body: " + err.Error()))
}

// RespondInternalError sends a 500 response
func (r *ErrorResponder) RespondInternalError(err error) {
	r.RespondWithAppError(errors.ErrInternal("").Wrap(err))
}

func logError(logger *slog.Logger, c *gin.Context, appErr *errors.AppError) {
	level := slog.LevelError
	if appErr.HTTPStatus < http.StatusInternalServerError {
		level = slog.LevelWarn
	}

	attrs := []any{
		"code", appErr.Code,
		"message", appErr.Message,
		"status", appErr.HTTPStatus,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"requestId", GetRequestID(c),
	}
	if appErr.Err != nil {
		attrs = append(attrs, "error", appErr.Err.Error())
	}
	if appErr.Details != nil {
		attrs = append(attrs, "details", appErr.Details)
	}

	logger.Log(c.Request.Context(), level, "API error", attrs...)
}

// AbortWithAppError aborts the request with an AppError
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, newAPIErrorResponse(c, appErr))
}
