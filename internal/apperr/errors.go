// Package apperr holds the sentinel errors shared across the vault packages.
package apperr

import "errors"

var (
	// Validation.
	ErrInvalidSecret   = errors.New("invalid secret")
	ErrInvalidAccount  = errors.New("invalid account")
	ErrSecretImmutable = errors.New("secret cannot be changed")
	ErrOutOfRange      = errors.New("index out of range")

	// Vault codec.
	ErrDecryptionFailed    = errors.New("decryption failed")
	ErrNotCiphertext       = errors.New("data is not a recognised ciphertext")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// Bundles.
	ErrFormat           = errors.New("format error")
	ErrPasswordRequired = errors.New("password required")

	// Session.
	ErrLocked          = errors.New("vault is locked")
	ErrWrongPassword   = errors.New("wrong password")
	ErrVaultUnreadable = errors.New("vault could not be decrypted; refusing to overwrite")

	// Settings.
	ErrInvalidSettings = errors.New("invalid settings")
)
