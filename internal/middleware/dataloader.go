package middleware

import (
	"net/http"

	"github.com/hangxigood/ERP-MES-sub000/internal/repository"
	"github.com/hangxigood/ERP-MES-sub000/internal/userloader"
)

// DataLoaderMiddleware attaches a fresh user loader to every request context.
func DataLoaderMiddleware(dir repository.UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := userloader.NewUserLoader(dir)
			ctx := userloader.WithLoader(r.Context(), loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
