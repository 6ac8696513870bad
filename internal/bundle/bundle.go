// Package bundle reads and writes .lauth export files.
//
// A bundle is a JSON envelope {version, encrypted, accounts}. Unencrypted
// bundles are stored as readable indented JSON; encrypted bundles pass the
// whole envelope through the vault codec with a password chosen at export
// time, independent of the vault's own password.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/vaultcrypto"
)

const (
	// Version is the envelope version written on export.
	Version = "1.0"
	// DefaultExtension is appended to export paths that have none.
	DefaultExtension = ".lauth"
)

// Envelope is the bundle document.
type Envelope struct {
	Version   string           `json:"version"`
	Encrypted bool             `json:"encrypted"`
	Accounts  []models.Account `json:"accounts"`
}

// rawEnvelope keeps accounts undecoded so a missing array can be told apart
// from an empty one.
type rawEnvelope struct {
	Version   string          `json:"version"`
	Encrypted bool            `json:"encrypted"`
	Accounts  json.RawMessage `json:"accounts"`
}

// Bundler encodes and decodes bundles with a vault codec.
type Bundler struct {
	codec *vaultcrypto.Codec
}

// New returns a Bundler that encrypts with codec.
func New(codec *vaultcrypto.Codec) *Bundler {
	return &Bundler{codec: codec}
}

type exportOptions struct {
	legacy bool
}

// ExportOption customises Export.
type ExportOption func(*exportOptions)

// WithLegacyFormat writes encrypted bundles as Fernet tokens the LightAuth 1.x
// desktop application can import.
func WithLegacyFormat() ExportOption {
	return func(o *exportOptions) {
		o.legacy = true
	}
}

// Export produces a bundle holding accs in order. A non-empty password
// encrypts the whole envelope.
func (b *Bundler) Export(accs []models.Account, password string, opts ...ExportOption) ([]byte, error) {
	var o exportOptions
	for _, opt := range opts {
		opt(&o)
	}
	if accs == nil {
		accs = []models.Account{}
	}
	env := Envelope{Version: Version, Encrypted: password != "", Accounts: accs}

	if !env.Encrypted {
		data, err := json.MarshalIndent(env, "", "    ")
		if err != nil {
			return nil, fmt.Errorf("bundle: encode: %w", err)
		}
		return data, nil
	}
	if o.legacy {
		return b.codec.EncryptLegacy(env, password)
	}
	return b.codec.Encrypt(env, password)
}

// Import decodes a bundle. Readable JSON is tried first; a readable
// envelope that claims to be encrypted is rejected with apperr.ErrFormat.
// Anything else is treated as ciphertext and needs a password.
// Every account is validated before the envelope is returned.
func (b *Bundler) Import(data []byte, password string) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err == nil {
		if raw.Encrypted {
			return nil, fmt.Errorf("%w: bundle declares encrypted=true but is stored as plaintext", apperr.ErrFormat)
		}
		return finish(raw)
	}

	if password == "" {
		return nil, apperr.ErrPasswordRequired
	}
	raw = rawEnvelope{}
	if _, err := b.codec.Decrypt(data, password, &raw); err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	return finish(raw)
}

func finish(raw rawEnvelope) (*Envelope, error) {
	trimmed := bytes.TrimSpace(raw.Accounts)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: no accounts array", apperr.ErrFormat)
	}
	var accs []models.Account
	if err := json.Unmarshal(trimmed, &accs); err != nil {
		return nil, fmt.Errorf("%w: accounts: %v", apperr.ErrFormat, err)
	}
	for i, a := range accs {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
	}
	if accs == nil {
		accs = []models.Account{}
	}
	return &Envelope{Version: raw.Version, Encrypted: raw.Encrypted, Accounts: accs}, nil
}

// EnsureExtension appends DefaultExtension to path when it has no extension.
func EnsureExtension(path string) string {
	if filepath.Ext(path) == "" {
		return path + DefaultExtension
	}
	return path
}

// IsBundlePath reports whether path carries the bundle extension.
func IsBundlePath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), DefaultExtension)
}
