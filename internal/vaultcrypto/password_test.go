package vaultcrypto

import (
	"strings"
	"testing"
)

// hex(sha256("LightAuth_Security_Salt" + "hunter2")) as stored by LightAuth 1.x.
const legacyDigestHunter2 = "d069d04203c93b18cc20b78366e7447067472098e40ff42f2d0007d4693fb5eb"

func TestHashPassword_Verify(t *testing.T) {
	digest, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$") {
		t.Errorf("digest = %q", digest)
	}
	if !VerifyPassword("hunter2", digest) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("hunter3", digest) {
		t.Error("wrong password accepted")
	}
	if NeedsRehash(digest) {
		t.Error("fresh digest flagged for rehash")
	}
}

func TestHashPassword_RandomSalt(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Error("two digests of the same password are identical")
	}
}

func TestVerifyPassword_Legacy(t *testing.T) {
	if !VerifyPassword("hunter2", legacyDigestHunter2) {
		t.Error("legacy digest rejected")
	}
	if VerifyPassword("hunter", legacyDigestHunter2) {
		t.Error("wrong password accepted against legacy digest")
	}
	if !NeedsRehash(legacyDigestHunter2) {
		t.Error("legacy digest not flagged for rehash")
	}
}

func TestVerifyPassword_Garbage(t *testing.T) {
	for _, d := range []string{"", "zz", "$argon2id$v=19$bad", "$argon2id$v=1$m=1,t=1,p=1$AAAA$AAAA"} {
		if VerifyPassword("x", d) {
			t.Errorf("digest %q accepted", d)
		}
	}
}
