package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// newValidator возвращает валидатор с именами полей из json-тегов
// и проверкой денежных сумм на уровне структур.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(orderItemStructValidation, OrderItemRequest{})
	return v
}

// decimal.Decimal не поддерживает теги gt/min, поэтому суммы проверяются здесь.
func createOrderStructValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if !req.TotalAmount.IsPositive() {
		sl.ReportError(req.TotalAmount, "total_amount", "TotalAmount", "positive", "")
	}
}

func orderItemStructValidation(sl validator.StructLevel) {
	item := sl.Current().Interface().(OrderItemRequest)
	if !item.Price.IsPositive() {
		sl.ReportError(item.Price, "price", "Price", "positive", "")
	}
}

// bind разбирает JSON тело в out и валидирует его.
// При ошибке пишет ответ 400 и возвращает false.
func (h *Handler) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return false
	}

	if err := h.validate.Struct(out); err != nil {
		ValidationFailed(c, validationFields(err))
		return false
	}
	return true
}

// validationFields превращает ошибки валидатора в карту поле → правило.
// Ключ — путь по json-именам без имени корневой структуры.
func validationFields(err error) map[string]string {
	out := map[string]string{}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out["request"] = err.Error()
		return out
	}

	for _, fe := range ve {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out[field] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " element(s)"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "positive":
		return "must be greater than 0"
	default:
		return "failed on " + fe.Tag()
	}
}
