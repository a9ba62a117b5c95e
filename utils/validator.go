package utils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct validates a request struct and, on failure, reports the
// first failing field as a human-readable message. Callers surface the
// message verbatim, so nothing internal may leak into it.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return fmt.Errorf("invalid request")
	}

	first := validationErrors[0]
	field := strings.ToLower(first.Field())
	param := first.Param()

	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "min":
		return fmt.Errorf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Errorf("%s must be at most %s characters", field, param)
	case "email":
		return fmt.Errorf("%s must be a valid email", field)
	case "dive":
		return fmt.Errorf("%s contains an invalid entry", field)
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
