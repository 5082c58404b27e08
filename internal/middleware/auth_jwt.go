package middleware

import (
	"net/http"
	"strings"

	"ordercore/internal/auth"

	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // int64
	CtxUserRoleKey = "user_role" // auth.Role
)

type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
			}

			//JWTをパースして検証する
			id, err := v.Verify(rawToken)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, id.UserID)
			c.Set(CtxUserRoleKey, id.Role)

			return next(c)
		}
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

func errorJSON(code, msg string) errorResponse {
	return errorResponse{Error: msg, ErrorCode: code}
}
