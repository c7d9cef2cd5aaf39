package api

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/simstream/internal/logging"
)

// quietPaths are polled often and logged at debug on success.
var quietPaths = map[string]bool{
	"/api/health":  true,
	"/api/version": true,
}

// HTTPLoggingMiddleware logs each request once it completes. Stream
// requests complete when the viewer leaves, so their duration is the
// viewing time.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	u := ctx.URL()
	q := u.Query()

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", u.Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if udid := q.Get("udid"); udid != "" {
		attrs = append(attrs, slog.String("udid", udid))
	}
	if len(q) > 0 {
		attrs = append(attrs, slog.String("query", redactQuery(q)))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs, slog.Int("status", status), slog.Duration("duration", time.Since(start)))

	message := "HTTP request completed"
	if strings.HasPrefix(u.Path, "/api/stream") {
		message = "Stream request ended"
	}
	logging.GetLogger("api").LogAttrs(ctx.Context(), requestLevel(ctx.Method(), u.Path, status), message, attrs...)
}

func requestLevel(method, path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case method == "OPTIONS", quietPaths[path]:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// redactQuery hides the credentials EventSource and WebSocket clients pass
// in the query string.
func redactQuery(q url.Values) string {
	if q.Has("auth") {
		q.Set("auth", "REDACTED")
	}
	return q.Encode()
}
