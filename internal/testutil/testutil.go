// Package testutil provides shared test helpers for setting up vaults and services.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/lightauth/internal/audit"
	"github.com/starford/lightauth/internal/storage"
	"github.com/starford/lightauth/internal/vaultcrypto"
	"github.com/starford/lightauth/internal/vaultservice"
)

// TestDB creates a temporary SQLite audit database that is automatically cleaned up.
func TestDB(t *testing.T) *audit.DB {
	t.Helper()
	db, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary data directory with a storage.Provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// QuietLogger discards all log output.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestService returns a service over a fresh data directory with a fast KDF
// and an audit database. Extra options are applied last.
func TestService(t *testing.T, opts ...vaultservice.Option) (*vaultservice.Service, *storage.FS) {
	t.Helper()
	_, store := TestVault(t)
	base := []vaultservice.Option{
		vaultservice.WithCodec(vaultcrypto.NewCodec(vaultcrypto.WithIterations(vaultcrypto.MinIterations))),
		vaultservice.WithAuditLog(TestDB(t)),
		vaultservice.WithLogger(QuietLogger()),
	}
	svc := vaultservice.New(store, append(base, opts...)...)
	t.Cleanup(svc.Close)
	return svc, store
}

// Unlocked returns a TestService that has been unlocked without encryption.
func Unlocked(t *testing.T, opts ...vaultservice.Option) *vaultservice.Service {
	t.Helper()
	svc, _ := TestService(t, opts...)
	ok, err := svc.Unlock(context.Background(), "")
	if err != nil || !ok {
		t.Fatalf("Unlock = %v, %v", ok, err)
	}
	return svc
}
