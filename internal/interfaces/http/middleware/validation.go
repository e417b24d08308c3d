package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator reports JSON field names in validation errors and
// registers the payment_mode tag against the closed PaymentMode set.
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			name, _, _ = strings.Cut(fld.Tag.Get("form"), ",")
		}
		return name
	})
	return v.RegisterValidation("payment_mode", validatePaymentMode)
}

// validatePaymentMode accepts any casing of a known mode. Optional fields
// skip it through omitempty.
func validatePaymentMode(fl validator.FieldLevel) bool {
	_, err := billing.ParsePaymentMode(fl.Field().String())
	return err == nil
}

// ValidationDetails turns binding errors into per-field details. Errors
// that are not field validations (bad JSON) yield nil.
func ValidationDetails(err error) []dto.ValidationDetail {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]dto.ValidationDetail, 0, len(validationErrors))
	for _, e := range validationErrors {
		details = append(details, dto.ValidationDetail{
			Field:   fieldPath(e),
			Message: validationMessage(e),
		})
	}
	return details
}

// fieldPath drops the struct name so "CreateBillRequest.items[0].quantity"
// reads "items[0].quantity".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		if e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " entries"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "payment_mode":
		return "Must be one of: CASH UPI BANK_TRANSFER CREDIT OTHER"
	case "uuid":
		return "Invalid UUID format"
	default:
		return "Invalid value"
	}
}
