package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// LoggerKey for storing logger in Gin context
const LoggerKey = "logger"

const RequestIDHeader = "X-Request-ID"

type loggerCtxKey struct{}

func Logging(baseLogger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		span := trace.SpanFromContext(c.Request.Context())
		logger := baseLogger.With(
			slog.String("request_id", requestID),
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)

		c.Set(LoggerKey, logger)
		// Plain net/http handlers mounted through gin-adapter only see the request.
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), loggerCtxKey{}, logger))

		c.Next()

		logger.Info("request completed",
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.Int("size", c.Writer.Size()),
		)
	}
}

// GetLogger returns the request-scoped logger, or slog.Default outside Logging.
func GetLogger(c *gin.Context) *slog.Logger {
	if logger, exists := c.Get(LoggerKey); exists {
		return logger.(*slog.Logger)
	}
	return slog.Default()
}

// LoggerFromContext returns the logger Logging stored in ctx, or slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
