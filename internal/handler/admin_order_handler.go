package handler

import (
	"net/http"
	"strconv"
	"strings"

	"ordercore/internal/middleware"
	"ordercore/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, authMW echo.MiddlewareFunc) {
	admin := e.Group("/admin")
	admin.Use(authMW)
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/orders", h.list)
	admin.GET("/orders/stats", h.stats)
	admin.GET("/orders/:id", h.detail)
	admin.PUT("/orders/:id/status", h.updateStatus)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	var userID *int64
	if v := strings.TrimSpace(c.QueryParam("user_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		userID = &id
	}

	from, ok := queryTime(c, "from")
	if !ok {
		return badRequest(c, "invalid from")
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return badRequest(c, "invalid to")
	}

	//order_status と status のどちらでも受ける
	status := c.QueryParam("order_status")
	if status == "" {
		status = c.QueryParam("status")
	}

	out, err := h.uc.List(c.Request().Context(), usecase.AdminListOrdersInput{
		Page:   page,
		Limit:  limit,
		Status: status,
		UserID: userID,
		From:   from,
		To:     to,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) detail(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.Detail(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	orderID, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req OrderStatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	//操作した管理者ID（履歴の changed_by）
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.UpdateStatus(
		c.Request().Context(),
		adminID,
		orderID,
		usecase.AdminUpdateOrderStatusInput{Status: req.Status, Note: req.Note},
	)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) stats(c echo.Context) error {
	from, ok := queryTime(c, "from")
	if !ok {
		return badRequest(c, "invalid from")
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return badRequest(c, "invalid to")
	}

	out, err := h.uc.Stats(c.Request().Context(), usecase.OrderStatsInput{
		From:   from,
		To:     to,
		Bucket: c.QueryParam("bucket"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
