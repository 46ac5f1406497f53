package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
	jobIDKey     contextKey = "job_id"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

// Init configures the process logger. Development gets a text handler at debug level,
// everything else JSON at info.
func Init(env string) *slog.Logger {
	return InitWriter(env, os.Stdout)
}

func InitWriter(env string, w io.Writer) *slog.Logger {
	var h slog.Handler
	if env == "" || env == "development" || env == "dev" {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	l := slog.New(h)
	current.Store(l)
	slog.SetDefault(l)
	return l
}

func Get() *slog.Logger { return current.Load() }

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// FromContext returns the process logger annotated with the request, user and job
// ids found in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := Get()
	if ctx == nil {
		return l
	}
	var fields []any
	for _, k := range []contextKey{requestIDKey, userIDKey, jobIDKey} {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, string(k), v)
		}
	}
	if len(fields) > 0 {
		l = l.With(fields...)
	}
	return l
}
