package handlers

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	documentPattern = regexp.MustCompile(`^[0-9A-Za-z-]{5,20}$`)
	namePattern     = regexp.MustCompile(`^[a-zA-ZáéíóúÁÉÍÓÚñÑ\s]+$`)
	phonePattern    = regexp.MustCompile(`^[+]?[\d\s\-()]+$`)
)

const passwordSpecials = "@$!%*?&"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	for tag, fn := range map[string]validator.Func{
		"document": func(fl validator.FieldLevel) bool {
			return documentPattern.MatchString(fl.Field().String())
		},
		"personname": func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			n := utf8.RuneCountInString(s)
			return n >= 2 && n <= 100 && namePattern.MatchString(s)
		},
		"phone": func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return len(s) >= 7 && len(s) <= 20 && phonePattern.MatchString(s)
		},
		"strongpassword": func(fl validator.FieldLevel) bool {
			return strongPassword(fl.Field().String())
		},
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	return v
}

// strongPassword wants 8 to 128 characters mixing lower and upper case
// letters, a digit and one of @$!%*?&.
func strongPassword(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 8 || n > 128 {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return lower && upper && digit && special
}

// fieldMessages is the client-facing message per JSON field.
var fieldMessages = map[string]string{
	"document":   "Document must contain only alphanumeric characters and hyphens",
	"full_name":  "Full name must contain only letters and spaces",
	"birth_date": "Valid birth date required",
	"phone":      "Invalid phone number format",
	"email":      "Invalid email format",
	"address":    "Address too long",
	"password":   "Password must contain at least 8 characters, including uppercase, lowercase, number and special character",
	"role_id":    "Valid role ID required",
}

// secretFields are never echoed back in validation errors.
var secretFields = map[string]bool{"password": true}

// validateStruct runs the struct tags on req and translates failures into
// field errors.
func validateStruct(req any) fieldErrors {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fieldErrors{{Message: err.Error()}}
	}
	var errs fieldErrors
	for _, fe := range verrs {
		field := fe.Field()
		msg, ok := fieldMessages[field]
		if !ok {
			msg = "Invalid value"
		}
		var value any
		if !secretFields[field] {
			value = fe.Value()
		}
		errs.add(field, msg, value)
	}
	return errs
}
