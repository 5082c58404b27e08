package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

var (
	mu   sync.Mutex
	base *slog.Logger
)

// Initはグローバルロガーを作る（2回目以降は既存を返す）。
// filePath が空なら標準出力のみ。
func Init(service, filePath, level string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		return base
	}

	var w io.Writer = os.Stdout
	if filePath != "" {
		_ = os.MkdirAll(filepath.Dir(filePath), 0o755)
		rot := &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		w = io.MultiWriter(os.Stdout, rot)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	base = slog.New(h).With("service", service)
	return base
}

// Baseはグローバルロガーを返す。未初期化なら標準出力だけのロガー。
func Base() *slog.Logger {
	mu.Lock()
	l := base
	mu.Unlock()
	if l == nil {
		return Init("app", "", "info")
	}
	return l
}

// 子ロガー（ハンドラは共有）
func New(component string) *slog.Logger {
	return Base().With("component", component)
}

func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// ctxのロガー。無ければグローバル。
func FromCtx(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
