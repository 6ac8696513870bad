package vaultcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"

	"github.com/starford/lightauth/internal/apperr"
)

// Legacy vaults are Fernet tokens keyed by PBKDF2-SHA256 over the constant
// "LightAuth" with the password (or a fixed string when there is no
// password) as the salt. The first half of the 32-byte key signs, the
// second half encrypts, which is the fernet.Key layout.
const (
	fernetVersion   byte = 0x80
	legacyKDFInput       = "LightAuth"
	legacyEmptySalt      = "LightAuth_Salt_Value"
	legacyIterations     = 100_000

	fernetIVSize    = aes.BlockSize
	fernetMACSize   = sha256.Size
	fernetMinLength = 1 + 8 + fernetIVSize + aes.BlockSize + fernetMACSize

	// Legacy tokens never expire.
	legacyNoTTL = -1
)

// Every Fernet token starts with the version byte followed by the high,
// always-zero bytes of a Unix timestamp.
var fernetPrefix = []byte("gAAAAA")

func deriveLegacyKey(password string) *fernet.Key {
	salt := []byte(password)
	if password == "" {
		salt = []byte(legacyEmptySalt)
	}
	raw := pbkdf2.Key([]byte(legacyKDFInput), salt, legacyIterations, 32, sha256.New)
	defer wipe(raw)

	var k fernet.Key
	copy(k[:], raw)
	return &k
}

func sealLegacy(plaintext []byte, password string) ([]byte, error) {
	key := deriveLegacyKey(password)
	defer wipe(key[:])

	token, err := fernet.EncryptAndSign(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: fernet encrypt failed: %w", err)
	}
	return token, nil
}

func openLegacy(blob []byte, password string) ([]byte, error) {
	encoded := bytes.TrimSpace(blob)
	if err := checkLegacyLayout(encoded); err != nil {
		return nil, err
	}

	key := deriveLegacyKey(password)
	defer wipe(key[:])

	out := fernet.VerifyAndDecrypt(encoded, legacyNoTTL, []*fernet.Key{key})
	if out == nil {
		return nil, apperr.ErrDecryptionFailed
	}
	return out, nil
}

// checkLegacyLayout separates tokens that are not Fernet framing at all from
// tokens that fail authentication, which fernet reports alike.
func checkLegacyLayout(encoded []byte) error {
	token := make([]byte, base64.URLEncoding.DecodedLen(len(encoded)))
	n, err := base64.URLEncoding.Decode(token, encoded)
	if err != nil {
		return fmt.Errorf("%w: legacy token encoding: %v", apperr.ErrMalformedCiphertext, err)
	}
	token = token[:n]
	if len(token) < fernetMinLength || token[0] != fernetVersion ||
		(len(token)-1-8-fernetIVSize-fernetMACSize)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: legacy token layout", apperr.ErrMalformedCiphertext)
	}
	return nil
}
