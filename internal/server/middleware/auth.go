package middleware

import (
	"log/slog"
	"net/http"

	"github.com/RadEZorack/augmego-core/internal/auth"
)

// NewAuthMiddleware attaches the session's user to the request metadata. The world is
// readable without signing in, so a missing or untrusted session continues anonymously.
func NewAuthMiddleware(logger *slog.Logger, resolver auth.Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			user, err := resolver.ResolveUser(r)
			if err != nil {
				logger.Warn("Ignoring invalid session", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				user = nil
			}
			reqMeta.User = user
			next.ServeHTTP(w, r)
		})
	}
}
