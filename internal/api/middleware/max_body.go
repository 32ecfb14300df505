package middleware

import (
	"context"
	"net/http"

	"github.com/msgdesk/hub/internal/api/response"
)

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit.
// Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody limits request bodies to maxBytes. A declared Content-Length over the limit is rejected
// with 413 before the handler runs; otherwise the body is wrapped in http.MaxBytesReader and the
// handler's JSON decoding reports the overflow (see handlers.decodeBody). Both paths are counted.
// Use 0 or negative to disable.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				record(r, recorder)
				response.RespondRequestTooLarge(w)

				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			if rec.code() == http.StatusRequestEntityTooLarge {
				record(r, recorder)
			}
		})
	}
}

func record(r *http.Request, recorder RequestBodyTooLargeRecorder) {
	if recorder != nil {
		recorder.RecordRequestBodyTooLarge(r.Context())
	}
}
