package vaultservice

import (
	"github.com/starford/lightauth/internal/accounts"
	"github.com/starford/lightauth/internal/vaultcrypto"
)

// Session is the unlocked state: the password the vault is sealed with and
// the decrypted collection. It lives only in memory and is discarded by Close.
//
// Close zeroes the session's own password buffer only. The password reaches
// the service as a Go string, and pw hands the codec a fresh string on every
// save; those immutable copies stay on the heap until the garbage collector
// reclaims them.
type Session struct {
	password   []byte
	accounts   *accounts.Collection
	format     vaultcrypto.Format
	unreadable bool
}

func newSession(password string, coll *accounts.Collection, format vaultcrypto.Format) *Session {
	return &Session{password: []byte(password), accounts: coll, format: format}
}

// pw returns a string copy of the password that Close cannot wipe.
func (s *Session) pw() string {
	return string(s.password)
}

func (s *Session) setPassword(password string) {
	wipe(s.password)
	s.password = []byte(password)
}

// NeedsMigration reports whether the vault on disk is in the legacy format
// and will be rewritten as v2 by the next save.
func (s *Session) NeedsMigration() bool {
	return s.format == vaultcrypto.FormatLegacy
}

// Close zeroes the password buffer and drops the collection.
func (s *Session) Close() {
	wipe(s.password)
	s.password = nil
	s.accounts = nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
