package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"ordercore/internal/logging"
	"ordercore/internal/middleware"
	"ordercore/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error     string         `json:"error"`
	ErrorCode string         `json:"error_code"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message, ErrorCode: he.Code, Details: he.Details})
	}

	//500
	logging.FromCtx(c.Request().Context()).Error("unhandled error", "err", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", ErrorCode: usecase.CodeInternal})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, ErrorCode: usecase.CodeValidation})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", ErrorCode: usecase.CodeUnauthorized})
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す

func getUserIDFromContext(c echo.Context) (int64, bool) {
	id, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// 空なら def
func queryInt(c echo.Context, name string, def int) (int, bool) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RFC3339 か YYYY-MM-DD(UTC)
func queryTime(c echo.Context, name string) (*time.Time, bool) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, true
	}
	return nil, false
}
