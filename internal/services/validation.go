package services

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Maximums match the users table column widths.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 80
	MaxEmailLength    = 120
	MinPasswordLength = 8
)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func validateEmail(email string) error {
	if utf8.RuneCountInString(email) > MaxEmailLength {
		return ErrValidation("Email must be at most 120 characters long")
	}
	if !ValidEmail(email) {
		return ErrValidation("Invalid email format")
	}
	return nil
}

// ValidatePassword enforces the password policy: at least eight characters,
// one ASCII letter and one digit.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrValidation("Password must be at least 8 characters long")
	}
	hasLetter, hasDigit := false, false
	for _, r := range password {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasLetter {
		return ErrValidation("Password must contain at least one letter")
	}
	if !hasDigit {
		return ErrValidation("Password must contain at least one number")
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return ErrValidation("Username cannot be empty")
	}
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return ErrValidation("Username must be at least 3 characters long")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return ErrValidation("Username must be at most 80 characters long")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
