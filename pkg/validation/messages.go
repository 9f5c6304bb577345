package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Message resolves a validation failure to a user-facing string, preferring
// the per-field overrides
func Message(fieldErr validator.FieldError) string {
	if custom, ok := customMessages[fieldErr.Field()][fieldErr.Tag()]; ok {
		return custom
	}
	return defaultMessage(fieldErr.Field(), fieldErr.Tag())
}

// Messages flattens a validator error into field -> message
func Messages(err error) map[string]string {
	out := make(map[string]string)
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["request"] = "invalid request body"
		return out
	}
	for _, fieldErr := range validationErrs {
		out[strings.ToLower(fieldErr.Field())] = Message(fieldErr)
	}
	return out
}

var customMessages = map[string]map[string]string{
	"Email": {
		"required": "email is required",
		"email":    "email must be a valid address",
	},
	"Password": {
		"required": "password is required",
		"min":      "password must be at least 8 characters",
	},
	"NewPassword": {
		"required": "new password is required",
		"min":      "new password must be at least 8 characters",
	},
	"FirstName": {
		"required": "first name is required",
	},
	"LastName": {
		"required": "last name is required",
	},
	"Role": {
		"oneof": "role must be one of admin, manager, washer, client",
	},
	"Token": {
		"required": "token is required",
	},
	"RefreshToken": {
		"required": "refresh token is required",
	},
}

func defaultMessage(field, tag string) string {
	field = strings.ToLower(field)

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "numeric":
		return fmt.Sprintf("%s must be numeric", field)
	case "min":
		return fmt.Sprintf("%s is below the minimum length or value", field)
	case "max":
		return fmt.Sprintf("%s exceeds the maximum length or value", field)
	case "len":
		return fmt.Sprintf("%s has the wrong length", field)
	case "oneof":
		return fmt.Sprintf("%s is not one of the allowed values", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "eqfield":
		return fmt.Sprintf("%s does not match", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
