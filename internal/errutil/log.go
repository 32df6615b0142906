// Package errutil logs errors built with samber/oops as structured records.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Errors built with oops have their code
// and context flattened into attributes; other errors are logged as is.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if oc := oopsErr.Context(); len(oc) > 0 {
		attrs = append(attrs, "context", oc)
	}
	logger.ErrorContext(ctx, msg, attrs...)
}
