package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/shadercam/internal/logging"
)

// quietOperations are polled by the control page and logged at debug.
var quietOperations = map[string]bool{
	"get-preview": true,
	"get-state":   true,
}

// HTTPLoggingMiddleware logs each request once it completed. The level
// follows the status: errors for 5xx, warnings for 4xx, debug for CORS
// preflights and polled operations, info otherwise.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("api")

	next(ctx)

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.Int("status", ctx.Status()),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" {
		attrs = append(attrs, slog.String("query", query))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	logger.LogAttrs(ctx.Context(), requestLevel(ctx), "HTTP request completed", attrs...)
}

func requestLevel(ctx huma.Context) slog.Level {
	status := ctx.Status()
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case ctx.Method() == http.MethodOptions:
		return slog.LevelDebug
	}
	if op := ctx.Operation(); op != nil && quietOperations[op.OperationID] {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
