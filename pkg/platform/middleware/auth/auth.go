// Package auth attaches the signed-in visitor to the request context.
//
// Authentication is optional for most of the public surface: anonymous
// visitors may browse projects and start a pledge, and the wizard itself
// decides when a sign-in is required.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"fundly/pkg/platform/httputil"
	"fundly/pkg/requestcontext"

	dErrors "fundly/pkg/domain-errors"
)

// TokenAuthenticator turns a bearer token into the caller it asserts.
type TokenAuthenticator interface {
	Authenticate(tokenString string) (requestcontext.User, error)
}

const bearerPrefix = "Bearer "

// OptionalAuth attaches the caller when a bearer token is present.
// Requests without an Authorization header pass through anonymous;
// a malformed or invalid token is rejected.
func OptionalAuth(authenticator TokenAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - malformed authorization header",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			user, err := authenticator.Authenticate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithUser(ctx, user)))
		})
	}
}

// RequireAuth rejects requests that OptionalAuth left anonymous.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsAuthenticated(ctx) {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "sign-in required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
