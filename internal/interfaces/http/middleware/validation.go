package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/gamehub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// IdempotencyKeyHeader is read by the transfer endpoint
const IdempotencyKeyHeader = "Idempotency-Key"

var usernameTag = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SetupValidator registers JSON field names, decimal support and the
// "username" tag on gin's validator
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	// gt/gte/lte compare decimals through their float value
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameTag.MatchString(fl.Field().String())
	})
}

// FormatValidationErrors lists every failed field. Errors that are not
// validation failures mean the body did not decode.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return dto.NewValidationErrorResponse("Malformed request body", requestID, nil)
	}
	details := make([]dto.ValidationDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, dto.ValidationDetail{Field: fe.Field(), Message: fieldMessage(fe), Code: fe.Tag()})
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, getRequestID(c)))
}

var fieldMessages = map[string]func(validator.FieldError) string{
	"required": func(validator.FieldError) string { return "This field is required" },
	"min":      func(fe validator.FieldError) string { return "Must be at least " + fe.Param() + lengthUnit(fe) },
	"max":      func(fe validator.FieldError) string { return "Must be at most " + fe.Param() + lengthUnit(fe) },
	"uuid":     func(validator.FieldError) string { return "Invalid UUID format" },
	"oneof":    func(fe validator.FieldError) string { return "Must be one of: " + fe.Param() },
	"gt":       func(fe validator.FieldError) string { return "Must be greater than " + fe.Param() },
	"gte":      func(fe validator.FieldError) string { return "Must be at least " + fe.Param() },
	"lte":      func(fe validator.FieldError) string { return "Must be at most " + fe.Param() },
	"username": func(validator.FieldError) string { return "May only contain letters, digits and underscores" },
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Tag()]; ok {
		return msg(fe)
	}
	return "Invalid value"
}

func lengthUnit(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return " characters"
	}
	return ""
}
