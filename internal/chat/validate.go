package chat

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/ageniuscoder/duochat/backend/internal/utils"
	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,32}$`)

// ValidUsername reports whether s can be used as an identity.
func ValidUsername(s string) bool { return usernamePattern.MatchString(s) }

// RegisterValidators installs the "username" tag on v. The HTTP layer calls it
// on gin's validator so REST and websocket payloads share one rule.
func RegisterValidators(v *validator.Validate) error {
	return v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidUsername(fl.Field().String())
	})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := RegisterValidators(v); err != nil {
		panic(err)
	}
	return v
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return newError(ErrorValidation, utils.ValidationSummary(verrs), err)
	}
	return newError(ErrorValidation, "invalid payload", err)
}
