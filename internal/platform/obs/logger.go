package obs

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	RequestIDKey ctxKey = "req_id"
	loggerKey    ctxKey = "logger"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// InitLogger replaces the process logger. Unknown levels fall back to info.
func InitLogger(level string, jsonFormat bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if !jsonFormat {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	base = zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "delivery-estimate-service").
		Logger()
}

// SetLogger installs l as the process logger. Tests use it to capture output.
func SetLogger(l zerolog.Logger) { base = l }

// Logger returns the request logger stored in ctx, or the process logger.
func Logger(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok {
			return l
		}
	}
	return &base
}

// WithRequestID tags ctx and its logger with a request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := base.With().Str("req_id", requestID).Logger()
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	return context.WithValue(ctx, loggerKey, &l)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
