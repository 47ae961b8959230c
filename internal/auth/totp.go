// Package auth generates one-time codes for login flows behind 2FA.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPPlaceholder in a type step's value is replaced with a fresh code.
const TOTPPlaceholder = "{{totp}}"

var ErrNoSecret = errors.New("totp secret cannot be empty")

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func cleanSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
}

// GenerateTOTP returns the code for secret at t.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	passcode, err := totp.GenerateCodeCustom(cleanSecret(secret), t.UTC(), totpOpts)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return passcode, nil
}

// HasPlaceholder reports whether value needs ResolveValue.
func HasPlaceholder(value string) bool {
	return strings.Contains(value, TOTPPlaceholder)
}

// ResolveValue substitutes every TOTP placeholder in value. Values without a
// placeholder are returned unchanged and do not need a secret.
func ResolveValue(value, secret string, now time.Time) (string, error) {
	if !HasPlaceholder(value) {
		return value, nil
	}
	code, err := GenerateTOTP(secret, now)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(value, TOTPPlaceholder, code), nil
}
