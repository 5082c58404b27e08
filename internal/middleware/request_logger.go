package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"ordercore/internal/logging"
	"ordercore/internal/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const HeaderRequestID = "X-Request-ID"

// リクエストIDを振り、ctxにリクエスト用ロガーを入れる。終了時にアクセスログとメトリクス。
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			rid := req.Header.Get(HeaderRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, rid)

			log := base.With("request_id", rid)
			c.SetRequest(req.WithContext(logging.WithCtx(req.Context(), log)))

			err := next(c)
			if err != nil {
				//echoのエラーハンドラに書かせてからステータスを読む
				c.Error(err)
			}

			status := c.Response().Status
			elapsed := time.Since(start)
			path := c.Path()
			if path == "" {
				path = "unknown"
			}

			metrics.HTTPRequests.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			metrics.HTTPDuration.WithLabelValues(req.Method, path).Observe(float64(elapsed.Milliseconds()))

			attrs := []any{
				"method", req.Method,
				"path", path,
				"status", status,
				"latency_ms", elapsed.Milliseconds(),
			}
			if uid, ok := c.Get(CtxUserIDKey).(int64); ok {
				attrs = append(attrs, "user_id", uid)
			}
			switch {
			case status >= 500:
				log.Error("request", attrs...)
			case status >= 400:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
			return nil
		}
	}
}
