package util

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number format")
	ErrInvalidPIN   = errors.New("invalid pin format")

	// International format: optional leading +, then digits with
	// optional dash/space separators, 10-15 characters overall.
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\- ]{8,13}[0-9]$`)
	pinPattern   = regexp.MustCompile(`^[0-9]{4}$`)
)

// NormalizePhone strips separators so that equivalent spellings of the
// same number derive the same identity.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	return replacer.Replace(phone)
}

// ValidatePhone checks the raw input against the international phone
// pattern. It never logs the value it inspects.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if len(phone) < 10 || len(phone) > 15 {
		return ErrInvalidPhone
	}
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// ValidatePIN requires exactly four numeric digits.
func ValidatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPIN
	}
	return nil
}
