package internal

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/lightauth/internal/audit"
	"github.com/starford/lightauth/internal/storage"
	"github.com/starford/lightauth/internal/vaultcrypto"
	"github.com/starford/lightauth/internal/vaultservice"
)

// NewLogger returns the JSON logger used by every entry point.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// OpenService builds the vault service described by cfg: the data
// directory, the audit database and a codec with the configured work
// factor. The returned close function locks the service and releases the
// audit database.
func OpenService(cfg *Config, logger *slog.Logger, opts ...vaultservice.Option) (*vaultservice.Service, func(), error) {
	store, err := storage.NewFS(cfg.Data.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	base := []vaultservice.Option{
		vaultservice.WithVaultFile(cfg.Data.VaultFile),
		vaultservice.WithSettingsFile(cfg.Data.SettingsFile),
		vaultservice.WithCodec(vaultcrypto.NewCodec(vaultcrypto.WithIterations(cfg.Crypto.KDFIterations))),
		vaultservice.WithLogger(logger),
	}

	var db *audit.DB
	if path := cfg.Data.AuditPath(); path != "" {
		db, err = audit.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("init audit log: %w", err)
		}
		base = append(base, vaultservice.WithAuditLog(db))
	}

	svc := vaultservice.New(store, append(base, opts...)...)
	logger.Debug("vault service ready",
		slog.String("data_dir", store.Root()),
		slog.String("vault_file", svc.VaultPath()),
		slog.String("settings_file", svc.SettingsPath()))
	closeFn := func() {
		svc.Close()
		if db != nil {
			if err := db.Close(); err != nil {
				logger.Warn("audit log close failed", slog.String("error", err.Error()))
			}
		}
	}
	return svc, closeFn, nil
}
