package utils

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("phone number must include a country code, e.g. +14155550123")

// FormatPhoneNumber normalizes a user-entered number to E.164. The country
// code is mandatory: the number must start with "+" or "00".
func FormatPhoneNumber(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	switch {
	case strings.HasPrefix(phone, "+"):
		phone = phone[1:]
	case strings.HasPrefix(phone, "00"):
		phone = phone[2:]
	default:
		return "", ErrInvalidPhone
	}

	var b strings.Builder
	b.WriteByte('+')
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}

	formatted := b.String()
	// E.164: up to 15 digits, no leading zero in the country code.
	digits := len(formatted) - 1
	if digits < 8 || digits > 15 || formatted[1] == '0' {
		return "", ErrInvalidPhone
	}
	return formatted, nil
}
