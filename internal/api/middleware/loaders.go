package middleware

import (
	"net/http"

	"github.com/msgdesk/hub/internal/loaders"
)

// Loaders attaches a fresh set of DataLoaders to every request so batching and caching never cross requests.
func Loaders(factory *loaders.Factory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := loaders.WithLoaders(r.Context(), factory.New())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
