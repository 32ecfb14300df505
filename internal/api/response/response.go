// Package response writes JSON bodies and RFC 7807 problem responses.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorDetail is one field-level entry of a problem response.
type ErrorDetail struct {
	Location string `json:"location,omitempty"`
	Message  string `json:"message,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// ProblemDetails is an RFC 7807 problem document.
type ProblemDetails struct {
	Type     string        `json:"type,omitempty"`
	Title    string        `json:"title"`
	Status   int           `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Errors   []ErrorDetail `json:"errors,omitempty"`
}

// RespondProblem writes problem as application/problem+json with problem.Status.
func RespondProblem(w http.ResponseWriter, problem ProblemDetails) {
	if problem.Type == "" {
		problem.Type = "about:blank"
	}

	write(w, "application/problem+json", problem.Status, problem)
}

// RespondError writes a problem response with the given title and detail.
func RespondError(w http.ResponseWriter, statusCode int, title, detail string) {
	RespondProblem(w, ProblemDetails{Title: title, Status: statusCode, Detail: detail})
}

func respondStatus(w http.ResponseWriter, statusCode int, detail string) {
	RespondError(w, statusCode, http.StatusText(statusCode), detail)
}

// RespondBadRequest writes a 400.
func RespondBadRequest(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusBadRequest, detail)
}

// RespondUnauthorized writes a 401.
func RespondUnauthorized(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusUnauthorized, detail)
}

// RespondForbidden writes a 403; used when a configured limit rejects the request.
func RespondForbidden(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusForbidden, detail)
}

// RespondNotFound writes a 404.
func RespondNotFound(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusNotFound, detail)
}

// RespondConflict writes a 409.
func RespondConflict(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusConflict, detail)
}

// RespondRequestTooLarge writes a 413.
func RespondRequestTooLarge(w http.ResponseWriter) {
	respondStatus(w, http.StatusRequestEntityTooLarge, "request body exceeds maximum allowed size")
}

// RespondInternalServerError writes a 500.
func RespondInternalServerError(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusInternalServerError, detail)
}

// RespondBadGateway writes a 502: the messaging provider rejected the request.
func RespondBadGateway(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusBadGateway, detail)
}

// RespondServiceUnavailable writes a 503: a dependency is failing and the request may be retried.
func RespondServiceUnavailable(w http.ResponseWriter, detail string) {
	respondStatus(w, http.StatusServiceUnavailable, detail)
}

// RespondJSON writes data as the JSON body.
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	write(w, "application/json", statusCode, data)
}

func write(w http.ResponseWriter, contentType string, statusCode int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "content_type", contentType, "error", err)
	}
}
