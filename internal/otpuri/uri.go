// Package otpuri parses and builds otpauth:// provisioning URIs, the text
// carried by authenticator QR codes.
package otpuri

import (
	"net/url"
	"strings"

	"github.com/starford/lightauth/internal/models"
)

const scheme = "otpauth"

// Key is the account information carried by a provisioning URI.
type Key struct {
	Type   string `json:"type"` // "totp" or "hotp"
	Name   string `json:"name"`
	Issuer string `json:"issuer"`
	Secret string `json:"secret"`
}

// Account converts the key into an account record.
func (k *Key) Account() models.Account {
	return models.Account{Name: k.Name, Issuer: k.Issuer, Secret: k.Secret}
}

// Parse extracts the key from uri. Malformed input is a miss, not an
// error: ok is false for a foreign scheme, an unknown type, or a missing secret.
func Parse(uri string) (key *Key, ok bool) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil || u.Scheme != scheme {
		return nil, false
	}
	typ := strings.ToLower(u.Host)
	if typ != "totp" && typ != "hotp" {
		return nil, false
	}

	q := u.Query()
	secret := q.Get("secret")
	if secret == "" {
		return nil, false
	}
	issuerParam := q.Get("issuer")

	label := strings.TrimPrefix(u.Path, "/")
	var issuerLabel, name string
	switch {
	case issuerParam != "" && strings.HasPrefix(label, issuerParam+":"):
		// Issuers may themselves contain ':'; prefer the declared one.
		issuerLabel, name = issuerParam, label[len(issuerParam)+1:]
	default:
		if i := strings.Index(label, ":"); i >= 0 {
			issuerLabel, name = label[:i], label[i+1:]
		} else {
			name = label
		}
	}

	issuer := issuerParam
	if issuer == "" {
		issuer = issuerLabel
	}
	return &Key{Type: typ, Name: name, Issuer: issuer, Secret: secret}, true
}

// Build returns a TOTP provisioning URI for a. Parse(Build(a)) reproduces
// the account's name, issuer and secret.
func Build(a models.Account) string {
	label := url.PathEscape(a.Name)
	switch {
	case a.Issuer != "":
		label = url.PathEscape(a.Issuer) + ":" + label
	case strings.Contains(a.Name, ":"):
		// Keep the name from being split into issuer and name.
		label = ":" + label
	}

	q := url.Values{}
	q.Set("secret", a.Secret)
	if a.Issuer != "" {
		q.Set("issuer", a.Issuer)
	}
	return scheme + "://totp/" + label + "?" + q.Encode()
}
