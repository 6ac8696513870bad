package vaultcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/starford/lightauth/internal/apperr"
)

// v2 layout (binary):
//
//	[0..3]   magic "LAV2"
//	[4..7]   uint32 PBKDF2-SHA256 iterations
//	[8..23]  16-byte random salt
//	[24..35] 12-byte GCM nonce
//	[36..]   gcm.Seal output (ciphertext + 16-byte tag)
//
// Bytes 0..35 are passed to GCM as additional data.
var v2Magic = []byte("LAV2")

const (
	v2SaltSize   = 16
	v2NonceSize  = 12
	v2KeySize    = 32
	v2HeaderSize = 4 + 4 + v2SaltSize + v2NonceSize
	gcmTagSize   = 16
)

func deriveV2Key(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, v2KeySize, sha256.New)
}

func sealV2(rnd io.Reader, iterations int, plaintext []byte, password string) ([]byte, error) {
	if iterations < MinIterations || iterations > MaxIterations {
		return nil, fmt.Errorf("vaultcrypto: work factor %d out of range", iterations)
	}
	header := make([]byte, v2HeaderSize)
	copy(header[0:4], v2Magic)
	binary.BigEndian.PutUint32(header[4:8], uint32(iterations))
	if _, err := io.ReadFull(rnd, header[8:v2HeaderSize]); err != nil {
		return nil, fmt.Errorf("vaultcrypto: salt/nonce generation failed: %w", err)
	}
	salt := header[8 : 8+v2SaltSize]
	nonce := header[8+v2SaltSize : v2HeaderSize]

	key := deriveV2Key(password, salt, iterations)
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, v2HeaderSize, v2HeaderSize+len(plaintext)+gcmTagSize)
	copy(out, header)
	return gcm.Seal(out, nonce, plaintext, header), nil
}

func openV2(blob []byte, password string) ([]byte, error) {
	if len(blob) < v2HeaderSize+gcmTagSize {
		return nil, fmt.Errorf("%w: v2 blob too short (%d bytes)", apperr.ErrMalformedCiphertext, len(blob))
	}
	header := blob[:v2HeaderSize]
	iterations := int(binary.BigEndian.Uint32(header[4:8]))
	if iterations < MinIterations || iterations > MaxIterations {
		return nil, fmt.Errorf("%w: unsupported work factor %d", apperr.ErrMalformedCiphertext, iterations)
	}
	salt := header[8 : 8+v2SaltSize]
	nonce := header[8+v2SaltSize:]

	key := deriveV2Key(password, salt, iterations)
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, blob[v2HeaderSize:], header)
	if err != nil {
		// Wrong password and tampering are deliberately indistinguishable.
		return nil, apperr.ErrDecryptionFailed
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: aes init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: gcm init failed: %w", err)
	}
	return gcm, nil
}
