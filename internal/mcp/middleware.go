package mcp

import (
	"context"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// LoggingMiddleware logs every incoming request. Tool calls also carry the
// tool name, and a tool that answered with an error result logs at Warn.
func LoggingMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)

			attrs := []slog.Attr{
				slog.String("method", method),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if name := toolName(req); name != "" {
				attrs = append(attrs, slog.String("tool", name))
			}

			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				slog.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			case toolFailed(result):
				slog.LogAttrs(ctx, slog.LevelWarn, "tool returned an error", attrs...)
			default:
				slog.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}
			return result, err
		}
	}
}

func toolName(req sdkmcp.Request) string {
	call, ok := req.(*sdkmcp.CallToolRequest)
	if !ok || call.Params == nil {
		return ""
	}
	return call.Params.Name
}

func toolFailed(result sdkmcp.Result) bool {
	res, ok := result.(*sdkmcp.CallToolResult)
	return ok && res != nil && res.IsError
}
