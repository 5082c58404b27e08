package validator

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"ordercore/internal/domain/model"
	"ordercore/internal/usecase"
)

const (
	maxNameLen    = 100
	maxAddressLen = 255
	maxAreaLen    = 100
	maxNoteLen    = 500
	maxIdemKeyLen = 255
)

// 先頭+は任意、数字8〜15桁
var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

type orderValidator struct{}

// Usecaseは interface を依存注入
func NewOrderValidator() usecase.OrderValidator {
	return &orderValidator{}
}

// 注文確定の入力を検証。ロックを取る前に弾く。
func (v *orderValidator) ValidatePlaceOrder(in usecase.PlaceOrderInput) error {
	fields := map[string]any{}

	a := in.ShippingAddress
	// 必須チェック
	required(fields, "shipping_address.full_name", a.FullName, maxNameLen)
	required(fields, "shipping_address.address", a.Address, maxAddressLen)
	required(fields, "shipping_address.city", a.City, maxAreaLen)
	optional(fields, "shipping_address.ward", a.Ward, maxAreaLen)
	optional(fields, "shipping_address.district", a.District, maxAreaLen)

	phone := strings.TrimSpace(a.Phone)
	switch {
	case phone == "":
		fields["shipping_address.phone"] = "required"
	case !phonePattern.MatchString(phone):
		fields["shipping_address.phone"] = "invalid format"
	}

	// 支払方法（空ならCOD）
	switch model.PaymentMethod(strings.TrimSpace(in.PaymentMethod)) {
	case "", model.PaymentMethodCOD, model.PaymentMethodMock:
	default:
		fields["payment_method"] = "must be COD or MOCK"
	}

	optional(fields, "note", in.Note, maxNoteLen)
	optional(fields, "idempotency_key", in.IdempotencyKey, maxIdemKeyLen)

	if len(fields) > 0 {
		return usecase.NewHTTPError(http.StatusBadRequest, usecase.CodeValidation, "invalid order input").
			WithDetails(fields)
	}
	return nil
}

func required(fields map[string]any, name, value string, max int) {
	value = strings.TrimSpace(value)
	if value == "" {
		fields[name] = "required"
		return
	}
	optional(fields, name, value, max)
}

func optional(fields map[string]any, name, value string, max int) {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > max {
		fields[name] = "too long"
	}
}
