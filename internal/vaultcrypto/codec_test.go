package vaultcrypto

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/lightauth/internal/apperr"
)

// Tokens produced independently of this package with the LightAuth 1.x
// application's key derivation (fixed IV and timestamp for reproducibility).
const (
	legacyTokenHunter2 = "gAAAAABlU_EAAAECAwQFBgcICQoLDA0ODwQU6oFB-aWGstjdI8ATIrESXUIb0GZlK4GM6zG4AFruF2XIlfJ_HcaQb3KlriRJbPcaktK0g6z0v0MB32D3B3N3mh1yES6nFI-1IYFlGenYEIkqa438XJvb7jQc9dqdALnfk4ek766w29U7x5dgtP7zYOGNNxYjAQB6BTGWfqqM"
	legacyTokenEmpty   = "gAAAAABlU_EAEBESExQVFhcYGRobHB0eHxUBnMNwCjsxsfCKI1zWPjw4MsNs8TAJgCsXM3OLxTXOegyvpMTGYcI3KZjk6UByw7Qbt61n8vL3XTTJKa1kagbtqZwW9JC_9PAU91jec40Si8d_-DTZo730-VRA2tx3TfPL02g4tyDvGXyR6y52zHpXP0mfDhldWyCBzKuSavd-"
	legacyPlaintext    = `[{"name": "alice", "secret": "JBSWY3DPEHPK3PXP", "issuer": "GitHub", "icon": ""}]`
)

func testCodec() *Codec {
	return NewCodec(WithIterations(MinIterations))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := testCodec()
	doc := map[string]any{
		"version":  "1.0",
		"accounts": []any{map[string]any{"name": "a", "secret": "JBSWY3DPEHPK3PXP"}},
	}
	for _, password := range []string{"", "hunter2", "pässwörd ✓"} {
		blob, err := c.Encrypt(doc, password)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", password, err)
		}
		if DetectFormat(blob) != FormatV2 {
			t.Fatalf("Encrypt wrote format %v", DetectFormat(blob))
		}
		var got map[string]any
		f, err := c.Decrypt(blob, password, &got)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", password, err)
		}
		if f != FormatV2 {
			t.Errorf("format = %v", f)
		}
		if !reflect.DeepEqual(got, doc) {
			t.Errorf("round trip mismatch: %v != %v", got, doc)
		}
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	c := testCodec()
	blob, err := c.Encrypt([]string{"secret"}, "password1")
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	if _, err := c.Decrypt(blob, "password2", &out); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Fatalf("err = %v, want ErrDecryptionFailed", err)
	}
	if out != nil {
		t.Errorf("output populated on failure: %v", out)
	}
	if _, err := c.Decrypt(blob, "", &out); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Fatalf("empty password: err = %v", err)
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	c := testCodec()
	blob, _ := c.Encrypt([]string{"secret"}, "pw")

	// Flip a ciphertext bit, then a header bit (bound as additional data).
	for _, pos := range []int{len(blob) - 1, v2HeaderSize - 1, 10} {
		bad := bytes.Clone(blob)
		bad[pos] ^= 0x01
		var out []string
		if _, err := c.Decrypt(bad, "pw", &out); !errors.Is(err, apperr.ErrDecryptionFailed) {
			t.Errorf("pos %d: err = %v, want ErrDecryptionFailed", pos, err)
		}
	}
}

func TestDecrypt_RandomSaltPerBlob(t *testing.T) {
	c := testCodec()
	a, _ := c.Encrypt("doc", "pw")
	b, _ := c.Encrypt("doc", "pw")
	if bytes.Equal(a[8:24], b[8:24]) {
		t.Error("salt reused between blobs")
	}
}

func TestDecrypt_NotCiphertext(t *testing.T) {
	c := testCodec()
	var out any
	for _, blob := range [][]byte{nil, []byte(`{"accounts": []}`), []byte("hello")} {
		if _, err := c.Decrypt(blob, "pw", &out); !errors.Is(err, apperr.ErrNotCiphertext) {
			t.Errorf("%q: err = %v, want ErrNotCiphertext", blob, err)
		}
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	c := testCodec()
	blob, _ := c.Encrypt("doc", "pw")
	var out any
	if _, err := c.Decrypt(blob[:20], "pw", &out); !errors.Is(err, apperr.ErrMalformedCiphertext) {
		t.Errorf("truncated v2: err = %v", err)
	}

	weak := bytes.Clone(blob)
	weak[4], weak[5], weak[6], weak[7] = 0, 0, 0, 1
	if _, err := c.Decrypt(weak, "pw", &out); !errors.Is(err, apperr.ErrMalformedCiphertext) {
		t.Errorf("weak work factor: err = %v", err)
	}

	if _, err := c.Decrypt([]byte("gAAAAA!!!"), "pw", &out); !errors.Is(err, apperr.ErrMalformedCiphertext) {
		t.Errorf("bad legacy encoding: err = %v", err)
	}
}

func TestOpen_LegacyVectors(t *testing.T) {
	c := testCodec()
	cases := []struct {
		token, password string
	}{
		{legacyTokenHunter2, "hunter2"},
		{legacyTokenEmpty, ""},
	}
	for _, tc := range cases {
		pt, f, err := c.Open([]byte(tc.token), tc.password)
		if err != nil {
			t.Fatalf("password %q: %v", tc.password, err)
		}
		if f != FormatLegacy {
			t.Errorf("format = %v, want legacy", f)
		}
		if string(pt) != legacyPlaintext {
			t.Errorf("plaintext = %s", pt)
		}
	}
}

func TestOpen_LegacyWrongPassword(t *testing.T) {
	c := testCodec()
	if _, _, err := c.Open([]byte(legacyTokenHunter2), "hunter3"); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Errorf("err = %v, want ErrDecryptionFailed", err)
	}
	if _, _, err := c.Open([]byte(legacyTokenHunter2), ""); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Errorf("empty password: err = %v", err)
	}
}

func TestOpen_LegacyTrailingNewline(t *testing.T) {
	c := testCodec()
	if _, _, err := c.Open([]byte(legacyTokenHunter2+"\n"), "hunter2"); err != nil {
		t.Errorf("err = %v", err)
	}
}

func TestEncryptLegacy_RoundTrip(t *testing.T) {
	c := testCodec()
	blob, err := c.EncryptLegacy(map[string]string{"k": "v"}, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(blob), "gAAAAA") {
		t.Errorf("not a fernet token: %s", blob)
	}
	var got map[string]string
	f, err := c.Decrypt(blob, "pw", &got)
	if err != nil || f != FormatLegacy || got["k"] != "v" {
		t.Errorf("got %v, %v, %v", got, f, err)
	}
}

func TestWithIterationsFloor(t *testing.T) {
	if NewCodec(WithIterations(10)).Iterations() != MinIterations {
		t.Error("iterations below the floor were accepted")
	}
	if NewCodec().Iterations() != DefaultIterations {
		t.Error("unexpected default")
	}
}

func TestOpen_LegacyTampered(t *testing.T) {
	c := testCodec()
	blob, err := c.SealLegacy([]byte(legacyPlaintext), "pw")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.URLEncoding.DecodeString(string(blob))
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-fernetMACSize-1] ^= 0x01
	tampered := []byte(base64.URLEncoding.EncodeToString(raw))
	if _, _, err := c.Open(tampered, "pw"); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Errorf("err = %v, want ErrDecryptionFailed", err)
	}
	if pt, _, err := c.Open(blob, "pw"); err != nil || string(pt) != legacyPlaintext {
		t.Errorf("untampered token: %q, %v", pt, err)
	}
}

func TestWithIterationsCeiling(t *testing.T) {
	for _, n := range []int{MaxIterations + 1, 20_000_000, 1 << 40} {
		if got := NewCodec(WithIterations(n)).Iterations(); got != MaxIterations {
			t.Errorf("WithIterations(%d) = %d, want %d", n, got, MaxIterations)
		}
	}
}

func TestOpenRejectsHeaderAboveCeiling(t *testing.T) {
	c := testCodec()
	blob, err := c.Seal([]byte(`[]`), "pw")
	if err != nil {
		t.Fatal(err)
	}
	binary.BigEndian.PutUint32(blob[4:8], MaxIterations+1)
	if _, _, err := c.Open(blob, "pw"); !errors.Is(err, apperr.ErrMalformedCiphertext) {
		t.Errorf("err = %v, want malformed ciphertext", err)
	}
}

func TestFormatString(t *testing.T) {
	if FormatV2.String() != "v2" || FormatLegacy.String() != "legacy" || FormatUnknown.String() != "unknown" {
		t.Error("unexpected format names")
	}
}
