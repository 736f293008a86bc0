package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/authentication-api/services"
	"github.com/upb/authentication-api/utils"
)

// HandleServiceError maps domain errors to HTTP responses.
// Every unauthorized reason gets the same body; the reason is only logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsUnauthorizedError(err):
		logger.Debug("request unauthorized", zap.Error(err))
		writeErr = utils.WriteUnauthorized(w, "")

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, messageOf(err))

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, messageOf(err), details)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, messageOf(err))

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, messageOf(err), details)

	case services.IsUnavailableError(err):
		logger.Error("backing store unavailable", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, "")

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// messageOf returns the client-safe message of a domain error
func messageOf(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
