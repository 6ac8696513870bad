// Package vaultcrypto derives keys from passwords and seals documents with
// authenticated encryption. It reads two formats:
//
//   - v2, written by this package: a "LAV2" header carrying the PBKDF2 work
//     factor and a random salt, followed by AES-256-GCM output.
//   - legacy, the Fernet tokens produced by the LightAuth 1.x desktop application,
//     whose key salt was derived from the password itself.
//
// Decryption fails closed. Callers get ErrNotCiphertext,
// ErrMalformedCiphertext or ErrDecryptionFailed and never partial plaintext.
package vaultcrypto

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/starford/lightauth/internal/apperr"
)

// Format identifies the encoding of a ciphertext blob.
type Format int

const (
	FormatUnknown Format = iota
	FormatLegacy
	FormatV2
)

func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatV2:
		return "v2"
	default:
		return "unknown"
	}
}

const (
	// MinIterations is the lowest PBKDF2 work factor accepted on read or write.
	MinIterations = 100_000
	// DefaultIterations is the work factor used for new v2 blobs.
	DefaultIterations = 600_000
	// MaxIterations bounds the work factor on write and the work a crafted
	// header can request on read.
	MaxIterations = 10_000_000
)

// Codec seals and opens vault documents.
type Codec struct {
	iterations int
	rand       io.Reader
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithIterations sets the PBKDF2 work factor for new blobs, clamped to
// [MinIterations, MaxIterations] so every blob written can be opened again.
func WithIterations(n int) CodecOption {
	return func(c *Codec) {
		c.iterations = min(max(n, MinIterations), MaxIterations)
	}
}

// WithRandom replaces the randomness source used for v2 salts and nonces.
func WithRandom(r io.Reader) CodecOption {
	return func(c *Codec) {
		c.rand = r
	}
}

// NewCodec returns a Codec with DefaultIterations and crypto/rand.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{iterations: DefaultIterations, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Iterations returns the work factor used for new blobs.
func (c *Codec) Iterations() int {
	return c.iterations
}

// DetectFormat inspects the leading bytes of blob.
func DetectFormat(blob []byte) Format {
	switch {
	case bytes.HasPrefix(blob, v2Magic):
		return FormatV2
	case bytes.HasPrefix(bytes.TrimSpace(blob), fernetPrefix):
		return FormatLegacy
	default:
		return FormatUnknown
	}
}

// Seal encrypts plaintext with password in the v2 format.
func (c *Codec) Seal(plaintext []byte, password string) ([]byte, error) {
	return sealV2(c.rand, c.iterations, plaintext, password)
}

// SealLegacy encrypts plaintext with password as a Fernet token the
// desktop application LightAuth 1.x can read.
func (c *Codec) SealLegacy(plaintext []byte, password string) ([]byte, error) {
	return sealLegacy(plaintext, password)
}

// Open decrypts blob with password and reports which format it was in.
func (c *Codec) Open(blob []byte, password string) ([]byte, Format, error) {
	switch f := DetectFormat(blob); f {
	case FormatV2:
		pt, err := openV2(blob, password)
		return pt, f, err
	case FormatLegacy:
		pt, err := openLegacy(blob, password)
		return pt, f, err
	default:
		return nil, FormatUnknown, apperr.ErrNotCiphertext
	}
}

// Encrypt JSON-encodes doc and seals it in the v2 format.
func (c *Codec) Encrypt(doc any, password string) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: encode document: %w", err)
	}
	defer wipe(data)
	return c.Seal(data, password)
}

// EncryptLegacy JSON-encodes doc and seals it as a Fernet token.
func (c *Codec) EncryptLegacy(doc any, password string) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: encode document: %w", err)
	}
	defer wipe(data)
	return c.SealLegacy(data, password)
}

// Decrypt opens blob and JSON-decodes the plaintext into out. An
// authenticated plaintext that does not decode into out is reported as
// ErrDecryptionFailed; out must not be used after an error.
func (c *Codec) Decrypt(blob []byte, password string, out any) (Format, error) {
	pt, f, err := c.Open(blob, password)
	if err != nil {
		return f, err
	}
	defer wipe(pt)
	if !json.Valid(pt) {
		return f, apperr.ErrDecryptionFailed
	}
	if err := json.Unmarshal(pt, out); err != nil {
		return f, fmt.Errorf("%w: %v", apperr.ErrDecryptionFailed, err)
	}
	return f, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
