// Package agentlog constructs the structured logger every other package
// retrieves from a context.Context, mirroring the teacher's
// logf.FromContext(ctx) idiom without a controller-runtime manager
// behind it.
package agentlog

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds a logr.Logger backed by zap. development selects a
// human-readable console encoder with debug-level output; production
// selects the JSON encoder at info level.
func New(development bool) (logr.Logger, error) {
	var zl *zap.Logger
	var err error
	if development {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// WithContext attaches logger to ctx for retrieval by FromContext.
func WithContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// FromContext retrieves the logger attached by WithContext, or a
// discarding logger if none was attached (the teacher's packages do the
// same rather than panicking on a missing logger).
func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}
