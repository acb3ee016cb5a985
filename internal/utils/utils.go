package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

type CustomErrorResponse struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func ValidationErr(err validator.ValidationErrors) []CustomErrorResponse {
	var errors []CustomErrorResponse
	for _, fieldErr := range err {
		errors = append(errors, CustomErrorResponse{
			Field:   fieldErr.Field(),
			Tag:     fieldErr.ActualTag(),
			Message: GetErrorMessage(fieldErr),
		})
	}
	return errors
}

// ValidationSummary flattens validation errors into one line, e.g.
// "username: This field is required.; email: Must be a valid email address."
func ValidationSummary(err validator.ValidationErrors) string {
	parts := make([]string, 0, len(err))
	for _, e := range ValidationErr(err) {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

func GetErrorMessage(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "This field is required."
	case "email":
		return "Must be a valid email address."
	case "username":
		return "Must be 1-32 characters of letters, digits, '_', '.' or '-'."
	case "max":
		return "Must be at most " + fe.Param() + " characters."
	default:
		return "Unknown validation error."
	}
}
