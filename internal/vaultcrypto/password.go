package vaultcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// The unlock digest only gates access; it is never used to derive a key.
// New digests are argon2id with a random salt:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
//
// Digests written by LightAuth 1.x are hex(sha256(fixedSalt + password)).
const (
	argonMemory  = 19 * 1024
	argonTime    = 2
	argonThreads = 1
	argonSaltLen = 16
	argonKeyLen  = 32

	legacyDigestSalt = "LightAuth_Security_Salt"
)

// HashPassword returns an argon2id digest of password.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("vaultcrypto: failed to generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword reports whether password matches digest. Both argon2id and
// legacy SHA-256 digests are accepted.
func VerifyPassword(password, digest string) bool {
	if digest == "" {
		return false
	}
	if strings.HasPrefix(digest, "$argon2id$") {
		return verifyArgon2id(password, digest)
	}
	return verifyLegacyDigest(password, digest)
}

// NeedsRehash reports whether digest uses the legacy fixed-salt scheme and
// should be replaced by HashPassword on the next successful unlock.
func NeedsRehash(digest string) bool {
	return digest != "" && !strings.HasPrefix(digest, "$argon2id$")
}

func verifyArgon2id(password, digest string) bool {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, computed) == 1
}

func verifyLegacyDigest(password, digest string) bool {
	expected, err := hex.DecodeString(digest)
	if err != nil || len(expected) != sha256.Size {
		return false
	}
	sum := sha256.Sum256([]byte(legacyDigestSalt + password))
	return subtle.ConstantTimeCompare(expected, sum[:]) == 1
}
