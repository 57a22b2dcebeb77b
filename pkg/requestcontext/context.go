// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	user, ok := requestcontext.CurrentUser(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithUser(ctx, requestcontext.User{ID: userID})
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "fundly/pkg/domain"
)

type (
	userKey           struct{}
	browserSessionKey struct{}
	requestIDKey      struct{}
	requestTimeKey    struct{}
)

var (
	ContextKeyUser           = userKey{}
	ContextKeyBrowserSession = browserSessionKey{}
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// User is the authenticated caller as asserted by the bearer token.
type User struct {
	ID    id.UserID
	Name  string
	Email string
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

// CurrentUser returns the authenticated caller, if any.
func CurrentUser(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ContextKeyUser).(User)
	if !ok || u.ID.IsNil() {
		return User{}, false
	}
	return u, true
}

// IsAuthenticated reports whether an authenticated caller is attached to ctx.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := CurrentUser(ctx)
	return ok
}

// WithUser injects an authenticated caller into the context.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// BrowserSession returns the opaque anonymous session key set by the session
// cookie middleware. Drafts started before login are keyed to it.
func BrowserSession(ctx context.Context) string {
	if s, ok := ctx.Value(ContextKeyBrowserSession).(string); ok {
		return s
	}
	return ""
}

func WithBrowserSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, ContextKeyBrowserSession, session)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
