package log

import (
	"context"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger attaches logger to ctx. GinMiddleware stores the request scoped
// logger, already carrying the request id, this way.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithKind returns a context whose logger tags every entry with the id kind
// being served.
func WithKind(ctx context.Context, kind string) context.Context {
	return WithLogger(ctx, Ctx(ctx).With().Str(FieldKind, kind).Logger())
}

// Ctx returns the logger attached to ctx, or the global logger outside of a
// request.
func Ctx(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}
