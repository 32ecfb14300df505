// Package handlers implements the /v1 REST endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/api/validation"
	"github.com/msgdesk/hub/internal/huberrors"
)

const unexpectedError = "An unexpected error occurred"

// decodeBody decodes a JSON body (rejecting unknown fields) and validates it.
// It writes the error response and returns false when the request is invalid.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondRequestTooLarge(w)
			return false
		}

		slog.WarnContext(r.Context(), "Invalid request body", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondBadRequest(w, "Invalid request body")
		return false
	}

	if err := validation.ValidateStruct(dst); err != nil {
		validation.RespondValidationError(w, err)
		return false
	}

	return true
}

// decodeQuery decodes and validates query parameters into dst.
func decodeQuery(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validation.ValidateAndDecodeQueryParams(r, dst); err != nil {
		validation.RespondValidationError(w, err)
		return false
	}

	return true
}

// pathID parses the UUID path parameter name.
func pathID(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	raw := r.PathValue(name)
	if raw == "" {
		response.RespondBadRequest(w, label+" ID is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")
		return uuid.Nil, false
	}

	return id, true
}

// respondServiceError maps service errors to problem responses. notFound is the detail used for 404s.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action, notFound string) {
	var upstream *huberrors.UpstreamError

	switch {
	case errors.Is(err, huberrors.ErrValidation):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, huberrors.ErrNotFound):
		response.RespondNotFound(w, notFound)
	case errors.Is(err, huberrors.ErrConflict):
		response.RespondConflict(w, err.Error())
	case errors.Is(err, huberrors.ErrLimitExceeded):
		response.RespondForbidden(w, err.Error())
	case errors.As(err, &upstream):
		slog.WarnContext(r.Context(), "Provider error",
			"action", action, "provider", upstream.Provider, "retryable", upstream.Retryable, "error", err)

		if upstream.Retryable {
			response.RespondServiceUnavailable(w, err.Error())
		} else {
			response.RespondBadGateway(w, err.Error())
		}
	default:
		slog.ErrorContext(r.Context(), "Failed to "+action, "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, unexpectedError)
	}
}
