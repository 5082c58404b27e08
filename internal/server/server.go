package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ordercore/internal/handler"
	"ordercore/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type Handlers struct {
	Orders      *handler.OrderHandler
	AdminOrders *handler.AdminOrderHandler
	Health      *handler.HealthHandler
}

func New(log *slog.Logger, verifier middleware.TokenVerifier, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	RegisterRoutes(e, middleware.AuthJWT(verifier), h)
	return e
}

// ルート未定義やbind失敗など、echo側で起きたエラーも同じ形で返す
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	}

	code := "INTERNAL_ERROR"
	switch {
	case status == http.StatusNotFound:
		code = "NOT_FOUND"
	case status == http.StatusMethodNotAllowed:
		code = "METHOD_NOT_ALLOWED"
	case status == http.StatusUnauthorized:
		code = "UNAUTHORIZED"
	case status < 500:
		code = "VALIDATION_ERROR"
	}

	_ = c.JSON(status, handler.ErrorResponse{Error: msg, ErrorCode: code})
}

// ctx がキャンセルされたら受付を止めて処理中のリクエストを待つ
func Start(ctx context.Context, e *echo.Echo, addr string, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("http server shutting down")
	return e.Shutdown(shutdownCtx)
}
