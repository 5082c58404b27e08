package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"
)

// クライアントに返すエラーコード
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN_RESOURCE"
	CodeCartEmpty           = "ORDER_CART_EMPTY"
	CodeProductNotFound     = "ORDER_PRODUCT_NOT_FOUND"
	CodeOutOfStock          = "CART_OUT_OF_STOCK"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeInvalidTransition   = "ORDER_INVALID_TRANSITION"
	CodeOrderCodeCollision  = "ORDER_CODE_COLLISION"
	CodeIdempotencyConflict = "ORDER_IDEMPOTENCY_CONFLICT"
	CodeLockTimeout         = "ORDER_LOCK_TIMEOUT"
	CodeInternal            = "INTERNAL_ERROR"
)

type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func NewHTTPError(status int, code, message string) *HTTPError {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// details付きのコピーを返す
func (e *HTTPError) WithDetails(details map[string]any) *HTTPError {
	cp := *e
	cp.Details = details
	return &cp
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func errUnauthorized() *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
}

func errOrderNotFound() *HTTPError {
	return NewHTTPError(http.StatusNotFound, CodeOrderNotFound, "order not found")
}

func errInvalidTransition(from, to model.OrderStatus, allowed []model.OrderStatus, message string) *HTTPError {
	names := make([]string, 0, len(allowed))
	for _, s := range allowed {
		names = append(names, string(s))
	}
	if message == "" {
		message = fmt.Sprintf("cannot change order status from %s to %s", from, to)
	}
	return NewHTTPError(http.StatusBadRequest, CodeInvalidTransition, message).WithDetails(map[string]any{
		"from":    string(from),
		"to":      string(to),
		"allowed": names,
	})
}

// repositoryやDBのエラーをHTTPErrorに寄せる（既にHTTPErrorならそのまま）
func toHTTPError(err error) *HTTPError {
	if he, ok := AsHTTPError(err); ok {
		return he
	}
	switch {
	case errors.Is(err, repo.ErrLockTimeout):
		return NewHTTPError(http.StatusServiceUnavailable, CodeLockTimeout, "order is busy, retry later")
	case errors.Is(err, repo.ErrOrderCodeConflict):
		return NewHTTPError(http.StatusConflict, CodeOrderCodeCollision, "could not allocate order code, retry later")
	case errors.Is(err, repo.ErrIdempotencyConflict):
		return NewHTTPError(http.StatusConflict, CodeIdempotencyConflict, "an order with this idempotency key is being created")
	case errors.Is(err, repo.ErrNotFound):
		return errOrderNotFound()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewHTTPError(http.StatusServiceUnavailable, CodeLockTimeout, "request cancelled")
	default:
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
