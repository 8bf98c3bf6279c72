package services

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestValidatePasswordExamples(t *testing.T) {
	cases := []struct {
		password string
		message  string
	}{
		{"abc12345", ""},
		{"abcdefgh", "Password must contain at least one number"},
		{"1234567", "Password must be at least 8 characters long"},
		{"12345678", "Password must contain at least one letter"},
		{"", "Password must be at least 8 characters long"},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.message == "" {
			assert.NoError(t, err, tc.password)
			continue
		}
		if assert.Error(t, err, tc.password) {
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, tc.message, PublicMessage(err))
		}
	}
}

func TestProperty_PasswordPolicy(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("short_passwords_are_rejected", prop.ForAll(
		func(pw string) bool {
			return PublicMessage(ValidatePassword(pw)) == "Password must be at least 8 characters long"
		},
		gen.Identifier().Map(func(s string) string {
			if len(s) > 7 {
				return s[:7]
			}
			return s
		}),
	))

	properties.Property("passwords_without_digits_are_rejected", prop.ForAll(
		func(pw string) bool {
			return PublicMessage(ValidatePassword(pw)) == "Password must contain at least one number"
		},
		gen.AlphaString().Map(func(s string) string { return s + "abcdefgh" }),
	))

	properties.Property("passwords_without_letters_are_rejected", prop.ForAll(
		func(pw string) bool {
			return PublicMessage(ValidatePassword(pw)) == "Password must contain at least one letter"
		},
		gen.NumString().Map(func(s string) string { return s + "12345678" }),
	))

	properties.Property("long_mixed_passwords_are_accepted", prop.ForAll(
		func(letters, digits string) bool {
			return ValidatePassword("a"+letters+"1"+digits+"xyz123") == nil
		},
		gen.AlphaString(),
		gen.NumString(),
	))

	properties.TestingRun(t)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("someone@example.com"))
	assert.True(t, ValidEmail("first.last+tag@sub.example.org"))
	assert.False(t, ValidEmail("someone@example"))
	assert.False(t, ValidEmail("no-at-sign.com"))
	assert.False(t, ValidEmail("two@@example.com"))
}
