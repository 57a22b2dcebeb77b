package httptransport

import (
	"context"
	"log/slog"

	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/requestcontext"
)

// logFailure logs server-side failures at error level and caller mistakes
// at debug, so 4xx traffic does not flood the error stream.
func logFailure(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		return
	}
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeInvalidState, dErrors.CodeExternalFailure, dErrors.CodeTimeout:
		logger.ErrorContext(ctx, msg, args...)
	default:
		logger.DebugContext(ctx, msg, args...)
	}
}
