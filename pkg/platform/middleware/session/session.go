// Package session issues the anonymous browser session cookie that keys
// pledge drafts started before the visitor signs in.
package session

import (
	"net/http"
	"time"

	"fundly/pkg/requestcontext"

	"github.com/google/uuid"
)

const (
	CookieName   = "fundly_session"
	cookieMaxAge = 30 * 24 * time.Hour
)

// Middleware reads the session cookie, minting one when absent.
func Middleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := ""
			if c, err := r.Cookie(CookieName); err == nil {
				if _, perr := uuid.Parse(c.Value); perr == nil {
					value = c.Value
				}
			}
			if value == "" {
				value = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    value,
					Path:     "/",
					MaxAge:   int(cookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := requestcontext.WithBrowserSession(r.Context(), value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
