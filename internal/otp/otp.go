// Package otp derives time-based one-time passwords (RFC 6238) from Base32 secrets.
//
// Everything here is a pure function of its inputs: codes are recomputed on
// every call and nothing is cached between periods.
package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/starford/lightauth/internal/apperr"
)

const (
	DefaultPeriod = 30 // seconds per time step
	DefaultDigits = 6

	// secretSize is the number of random bytes in a generated secret (160 bits).
	secretSize = 20
)

var rawBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

type options struct {
	period uint
	digits pqotp.Digits
}

// Option customises code generation.
type Option func(*options)

// WithPeriod sets the time step in seconds. Zero keeps the default.
func WithPeriod(seconds uint) Option {
	return func(o *options) {
		if seconds > 0 {
			o.period = seconds
		}
	}
}

// WithDigits sets the code length. Only 6 and 8 are accepted; other values keep the default.
func WithDigits(n int) Option {
	return func(o *options) {
		if n == 6 || n == 8 {
			o.digits = pqotp.Digits(n)
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{period: DefaultPeriod, digits: pqotp.DigitsSix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Code is a derived code together with its validity window.
type Code struct {
	Code             string  `json:"code"`
	RemainingSeconds int     `json:"remaining_seconds"`
	ProgressPercent  float64 `json:"progress_percent"`
	Period           uint    `json:"period"`
}

// GenerateCode returns the code for secret at now. It fails with
// apperr.ErrInvalidSecret when the secret is empty or not Base32.
func GenerateCode(secret string, now time.Time, opts ...Option) (string, error) {
	o := buildOptions(opts)
	canonical := canonicalSecret(secret)
	if !validCanonical(canonical) {
		return "", apperr.ErrInvalidSecret
	}
	code, err := totp.GenerateCodeCustom(canonical, now, totp.ValidateOpts{
		Period:    o.period,
		Digits:    o.digits,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	if err != nil {
		if errors.Is(err, pqotp.ErrValidateSecretInvalidBase32) {
			return "", apperr.ErrInvalidSecret
		}
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return code, nil
}

// Current returns the code for now plus the countdown values a display needs.
func Current(secret string, now time.Time, opts ...Option) (Code, error) {
	o := buildOptions(opts)
	code, err := GenerateCode(secret, now, opts...)
	if err != nil {
		return Code{}, err
	}
	return Code{
		Code:             code,
		RemainingSeconds: RemainingSeconds(now, o.period),
		ProgressPercent:  ProgressPercent(now, o.period),
		Period:           o.period,
	}, nil
}

// RemainingSeconds returns period - (unix mod period), always in [1, period].
func RemainingSeconds(now time.Time, period uint) int {
	if period == 0 {
		period = DefaultPeriod
	}
	p := int64(period)
	m := now.Unix() % p
	if m < 0 {
		m += p
	}
	return int(p - m)
}

// ProgressPercent returns how far into the current period now is, in [0, 100).
func ProgressPercent(now time.Time, period uint) float64 {
	if period == 0 {
		period = DefaultPeriod
	}
	elapsed := int(period) - RemainingSeconds(now, period)
	return float64(elapsed) / float64(period) * 100
}

// GenerateSecret returns a fresh 160-bit secret as unpadded Base32.
func GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "LightAuth",
		AccountName: "lightauth",
		SecretSize:  secretSize,
		Algorithm:   pqotp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("otp: generate secret: %w", err)
	}
	return key.Secret(), nil
}

// IsValidSecret reports whether candidate decodes as non-empty Base32.
// Surrounding whitespace, lower case and missing padding are tolerated,
// matching what GenerateCode accepts.
func IsValidSecret(candidate string) bool {
	return validCanonical(canonicalSecret(candidate))
}

// NormalizeSecret cleans up a secret typed or pasted by a user: spaces and
// dashes used for grouping are removed, letters upper-cased and padding dropped.
func NormalizeSecret(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, s)
	return canonicalSecret(s)
}

func canonicalSecret(s string) string {
	return strings.TrimRight(strings.ToUpper(strings.TrimSpace(s)), "=")
}

func validCanonical(s string) bool {
	if s == "" {
		return false
	}
	b, err := rawBase32.DecodeString(s)
	return err == nil && len(b) > 0
}
