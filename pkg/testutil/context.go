package testutil

import (
	"net/http"
	"time"

	"fundly/pkg/requestcontext"
)

// WithUser marks the request as signed in, as the auth middleware would.
func WithUser(req *http.Request, user requestcontext.User) *http.Request {
	return req.WithContext(requestcontext.WithUser(req.Context(), user))
}

// WithBrowserSession attaches an anonymous browser session id.
func WithBrowserSession(req *http.Request, session string) *http.Request {
	return req.WithContext(requestcontext.WithBrowserSession(req.Context(), session))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
