// Package signature authenticates server-to-server callbacks signed with a
// shared HMAC-SHA256 key.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/platform/httputil"
	"fundly/pkg/requestcontext"
)

// HeaderSignature carries "sha256=" followed by the hex HMAC of the body.
const HeaderSignature = "X-Gateway-Signature"

const (
	prefix      = "sha256="
	maxBodySize = 64 << 10
)

// Sign returns the header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// Valid reports whether header is the signature of body under secret. An
// empty secret never validates.
func Valid(secret string, body []byte, header string) bool {
	if secret == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// RequireSignature rejects requests whose body does not match the signature
// header. The body is restored for the next handler.
func RequireSignature(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "callback body too large"))
					return
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable callback body"))
				return
			}
			if !Valid(secret, body, r.Header.Get(HeaderSignature)) {
				logger.WarnContext(ctx, "callback signature mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "valid gateway signature required"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
