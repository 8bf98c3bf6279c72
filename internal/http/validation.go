package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"aiweb-backend-go/internal/services"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks req against its struct tags and reports the first
// failure as a validation error.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return services.Internal(err, "Invalid request")
	}
	first := verrs[0]
	field, param := first.Field(), first.Param()
	numeric := false
	switch first.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		numeric = true
	}
	switch first.Tag() {
	case "required":
		return services.ErrValidation(fmt.Sprintf("field '%s' is required", field))
	case "email":
		return services.ErrValidation(fmt.Sprintf("field '%s' must be a valid email address", field))
	case "min":
		if numeric {
			return services.ErrValidation(fmt.Sprintf("field '%s' must be at least %s", field, param))
		}
		return services.ErrValidation(fmt.Sprintf("field '%s' must be at least %s characters long", field, param))
	case "max":
		if numeric {
			return services.ErrValidation(fmt.Sprintf("field '%s' must be at most %s", field, param))
		}
		return services.ErrValidation(fmt.Sprintf("field '%s' must be at most %s characters long", field, param))
	default:
		return services.ErrValidation(fmt.Sprintf("field '%s' validation failed on tag '%s'", field, first.Tag()))
	}
}
