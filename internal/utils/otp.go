package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const otpLength = 6

// GenerateOTP returns a zero-padded 6-digit code.
func GenerateOTP() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n.Int64()), nil
}

// OTPMatches compares a submitted code in constant time.
func OTPMatches(expected, submitted string) bool {
	if len(submitted) != otpLength || len(expected) != otpLength {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}
