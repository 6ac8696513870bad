// Package models defines the domain types for LightAuth.
package models

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/otp"
)

// Account is one enrolled OTP credential.
type Account struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
	Issuer string `json:"issuer"`
	Icon   string `json:"icon"`
}

// DisplayName returns "name (issuer)" or just the name when the issuer is empty.
func (a Account) DisplayName() string {
	if a.Issuer == "" {
		return a.Name
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Issuer)
}

// Validate checks the account invariants. Secret failures wrap
// apperr.ErrInvalidSecret, everything else wraps apperr.ErrInvalidAccount.
func (a Account) Validate() error {
	if err := validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.By(notBlank)),
	); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidAccount, err)
	}
	if err := validation.Validate(a.Secret, validation.Required, validation.By(base32Secret)); err != nil {
		return fmt.Errorf("%w: secret: %v", apperr.ErrInvalidSecret, err)
	}
	return nil
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func base32Secret(value interface{}) error {
	s, _ := value.(string)
	if !otp.IsValidSecret(s) {
		return errors.New("must be non-empty base32 (A-Z, 2-7)")
	}
	return nil
}
