package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"storefront/internal/usecase"
)

const (
	minPasswordLen = 8
	maxNameLen     = 100
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// よくある弱いパスワード
var weakPasswords = map[string]struct{}{
	"password":    {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"qwertyuiop":  {},
	"letmein123":  {},
	"admin123":    {},
}

// サインアップの入力を検証
func ValidateRegister(name, email, password string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return usecase.NewValidationError("name", "required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return usecase.NewValidationError("name", "too long")
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if len(password) < minPasswordLen {
		return usecase.NewValidationError("password", "must be at least 8 characters")
	}
	if _, weak := weakPasswords[strings.ToLower(password)]; weak {
		return usecase.NewValidationError("password", "too weak")
	}
	return nil
}

// ログインの入力を検証
func ValidateLogin(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return usecase.NewValidationError("password", "required")
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return usecase.NewValidationError("email", "required")
	}
	if !emailPattern.MatchString(email) {
		return usecase.NewValidationError("email", "invalid format")
	}
	return nil
}
