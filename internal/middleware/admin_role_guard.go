package middleware

import (
	"net/http"

	"ordercore/internal/auth"

	"github.com/labstack/echo/v4"
)

//contextに入っているroleがADMINかどうかを確認します。

func AdminRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxUserRoleKey).(auth.Role)
			if !ok || role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
			}

			//USERは拒否、ADMINだけ許可
			if role != auth.RoleAdmin {
				return c.JSON(http.StatusForbidden, errorJSON("FORBIDDEN_RESOURCE", "admin only"))
			}

			return next(c)
		}
	}
}
