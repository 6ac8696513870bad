// Package vaultservice is the presentation contract of the authenticator:
// it owns the unlocked session, persists the vault after every mutation and
// derives codes on demand. The CLI, HTTP API and MCP server are thin
// adapters over a Service.
package vaultservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/starford/lightauth/internal/accounts"
	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/audit"
	"github.com/starford/lightauth/internal/bundle"
	"github.com/starford/lightauth/internal/checksum"
	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/otp"
	"github.com/starford/lightauth/internal/settings"
	"github.com/starford/lightauth/internal/storage"
	"github.com/starford/lightauth/internal/vaultcrypto"
)

// DefaultVaultFile is the vault file name inside the data directory.
const DefaultVaultFile = "accounts.dat"

// Event kinds passed to the Notifier.
const (
	EventUnlocked        = "vault.unlocked"
	EventLocked          = "vault.locked"
	EventReloaded        = "vault.reloaded"
	EventImported        = "vault.imported"
	EventPasswordChanged = "vault.password_changed"
	EventAccountAdded    = "account.added"
	EventAccountUpdated  = "account.updated"
	EventAccountRemoved  = "account.removed"
)

// Notifier receives vault change notifications. index is -1 when the event
// does not concern a single account.
type Notifier interface {
	PublishVaultEvent(kind string, index int)
}

// Service serialises every unlock, mutation and save behind one mutex.
type Service struct {
	mu sync.Mutex

	files     storage.Provider
	vaultPath string
	prefsPath string
	prefs     *settings.Store
	codec     *vaultcrypto.Codec
	bundler   *bundle.Bundler
	log       audit.Log
	notifier  Notifier
	written   *checksum.Recorder
	logger    *slog.Logger

	session *Session
}

// Option configures a Service.
type Option func(*Service)

// WithVaultFile sets the vault path relative to the data directory.
func WithVaultFile(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.vaultPath = path
		}
	}
}

// WithSettingsFile sets the settings path relative to the data directory.
func WithSettingsFile(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.prefsPath = path
		}
	}
}

// WithCodec replaces the default vault codec.
func WithCodec(c *vaultcrypto.Codec) Option {
	return func(s *Service) {
		s.codec = c
	}
}

// WithAuditLog records security events into l.
func WithAuditLog(l audit.Log) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNotifier publishes vault changes to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service storing its files through files.
func New(files storage.Provider, opts ...Option) *Service {
	s := &Service{
		files:     files,
		vaultPath: DefaultVaultFile,
		prefsPath: settings.DefaultFile,
		log:       audit.Discard{},
		written:   checksum.NewRecorder(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.prefs = settings.NewStore(files, s.prefsPath, s.logger)
	if s.codec == nil {
		s.codec = vaultcrypto.NewCodec()
	}
	s.bundler = bundle.New(s.codec)
	return s
}

// VaultPath returns the vault path relative to the data directory.
func (s *Service) VaultPath() string {
	return s.vaultPath
}

// VaultFile resolves the vault path on disk.
func (s *Service) VaultFile() (string, error) {
	return s.files.Abs(s.vaultPath)
}

// SettingsPath returns the settings path relative to the data directory.
func (s *Service) SettingsPath() string {
	return s.prefs.Path()
}

// LoadVault reads and decrypts the vault file with password. A missing or
// zero-length file is an empty vault. On any failure the returned collection
// is empty, never partial.
func (s *Service) LoadVault(password string) (*accounts.Collection, error) {
	coll, _, err := s.loadVault(password)
	return coll, err
}

func (s *Service) loadVault(password string) (*accounts.Collection, vaultcrypto.Format, error) {
	blob, err := s.files.Read(s.vaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return accounts.New(), vaultcrypto.FormatV2, nil
	}
	if err != nil {
		return accounts.New(), vaultcrypto.FormatUnknown, err
	}
	return s.decodeVault(blob, password)
}

func (s *Service) decodeVault(blob []byte, password string) (*accounts.Collection, vaultcrypto.Format, error) {
	if len(blob) == 0 {
		return accounts.New(), vaultcrypto.FormatV2, nil
	}
	coll := accounts.New()
	format, err := s.codec.Decrypt(blob, password, coll)
	if err != nil {
		return accounts.New(), format, fmt.Errorf("vaultservice: open vault: %w", err)
	}
	s.written.Remember(s.vaultPath, blob)
	return coll, format, nil
}

// SaveVault encrypts the session collection with the session password and
// atomically replaces the vault file.
func (s *Service) SaveVault(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Service) saveLocked(ctx context.Context) error {
	sess, err := s.writableSession()
	if err != nil {
		return err
	}
	return s.writeVault(ctx, sess, sess.accounts, sess.pw())
}

func (s *Service) writeVault(ctx context.Context, sess *Session, coll *accounts.Collection, password string) error {
	blob, err := s.codec.Encrypt(coll, password)
	if err != nil {
		return err
	}
	s.written.Remember(s.vaultPath, blob)
	if err := s.files.Write(s.vaultPath, blob); err != nil {
		s.written.Forget(s.vaultPath)
		return err
	}
	if sess.NeedsMigration() {
		s.logger.Info("vault migrated to v2 format", slog.String("path", s.vaultPath))
		s.record(ctx, audit.Event{Kind: audit.KindVaultMigrated})
	}
	sess.format = vaultcrypto.FormatV2
	return nil
}

// Unlock verifies password against the stored digest (when encryption is
// enabled) and opens a session with the decrypted vault. A wrong password
// returns false with a nil error.
//
// A vault that cannot be decrypted even though the password verified opens
// the session anyway, read-only: ok is true and err wraps
// apperr.ErrVaultUnreadable. Saves are refused so the file is never
// replaced by an empty collection.
func (s *Service) Unlock(ctx context.Context, password string) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.prefs.Load()
	if err != nil {
		return false, err
	}
	if prefs.EncryptionEnabled {
		if !vaultcrypto.VerifyPassword(password, prefs.EncryptionPasswordHash) {
			s.logger.Warn("unlock rejected")
			s.record(ctx, audit.Event{Kind: audit.KindUnlockFailed})
			return false, nil
		}
		if vaultcrypto.NeedsRehash(prefs.EncryptionPasswordHash) {
			s.upgradeDigest(prefs, password)
		}
	} else {
		password = ""
	}

	coll, format, loadErr := s.loadVault(password)
	if loadErr != nil && !isCryptoFailure(loadErr) {
		return false, loadErr
	}

	if s.session != nil {
		s.session.Close()
	}
	s.session = newSession(password, coll, format)
	if loadErr != nil {
		s.session.unreadable = true
		s.logger.Error("vault unreadable, session is read-only",
			slog.String("path", s.vaultPath), slog.String("error", loadErr.Error()))
	}
	s.record(ctx, audit.Event{Kind: audit.KindUnlock, Detail: format.String()})
	s.notify(EventUnlocked, -1)

	if loadErr != nil {
		return true, fmt.Errorf("%w: %w", apperr.ErrVaultUnreadable, loadErr)
	}
	return true, nil
}

func (s *Service) upgradeDigest(prefs settings.Settings, password string) {
	digest, err := vaultcrypto.HashPassword(password)
	if err != nil {
		s.logger.Warn("password digest upgrade failed", slog.String("error", err.Error()))
		return
	}
	prefs.EncryptionPasswordHash = digest
	if err := s.prefs.Save(prefs); err != nil {
		s.logger.Warn("password digest upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("password digest upgraded to argon2id")
}

func isCryptoFailure(err error) bool {
	return errors.Is(err, apperr.ErrDecryptionFailed) ||
		errors.Is(err, apperr.ErrMalformedCiphertext) ||
		errors.Is(err, apperr.ErrNotCiphertext)
}

// Lock closes the session and zeroes the password.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.session.Close()
	s.session = nil
	s.record(context.Background(), audit.Event{Kind: audit.KindLock})
	s.notify(EventLocked, -1)
}

// Unlocked reports whether a session is open.
func (s *Service) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Status summarises the service state.
type Status struct {
	Unlocked          bool   `json:"unlocked"`
	Unreadable        bool   `json:"unreadable"`
	EncryptionEnabled bool   `json:"encryption_enabled"`
	NeedsMigration    bool   `json:"needs_migration"`
	Accounts          int    `json:"accounts"`
	Format            string `json:"format,omitempty"`
}

// Status returns the current state. Settings read failures are reported
// as encryption disabled.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, _ := s.prefs.Load()
	st := Status{EncryptionEnabled: prefs.EncryptionEnabled}
	if s.session != nil {
		st.Unlocked = true
		st.Unreadable = s.session.unreadable
		st.NeedsMigration = s.session.NeedsMigration()
		st.Accounts = s.session.accounts.Count()
		st.Format = s.session.format.String()
	}
	return st
}

// SetPassword changes the vault password. oldPassword is checked when
// encryption is enabled; an empty newPassword disables encryption. The vault is
// re-encrypted first and the new digest stored second; if the digest
// cannot be stored the previous vault file is restored.
func (s *Service) SetPassword(ctx context.Context, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.writableSession()
	if err != nil {
		return err
	}
	prefs, err := s.prefs.Load()
	if err != nil {
		return err
	}
	if prefs.EncryptionEnabled && !vaultcrypto.VerifyPassword(oldPassword, prefs.EncryptionPasswordHash) {
		s.record(ctx, audit.Event{Kind: audit.KindUnlockFailed, Detail: "password change"})
		return apperr.ErrWrongPassword
	}

	if newPassword == "" {
		prefs.SetEncryption(false, "")
	} else {
		digest, err := vaultcrypto.HashPassword(newPassword)
		if err != nil {
			return err
		}
		prefs.SetEncryption(true, digest)
	}

	previous, err := s.files.Read(s.vaultPath)
	hadVault := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	prevFormat := sess.format

	if err := s.writeVault(ctx, sess, sess.accounts, newPassword); err != nil {
		return err
	}
	if err := s.prefs.Save(prefs); err != nil {
		s.rollbackVault(previous, hadVault)
		sess.format = prevFormat
		return fmt.Errorf("vaultservice: store password digest: %w", err)
	}

	sess.setPassword(newPassword)
	s.logger.Info("vault password changed", slog.Bool("encryption_enabled", prefs.EncryptionEnabled))
	s.record(ctx, audit.Event{Kind: audit.KindPasswordChanged})
	s.notify(EventPasswordChanged, -1)
	return nil
}

func (s *Service) rollbackVault(previous []byte, hadVault bool) {
	var err error
	if hadVault {
		s.written.Remember(s.vaultPath, previous)
		err = s.files.Write(s.vaultPath, previous)
	} else {
		s.written.Forget(s.vaultPath)
		err = s.files.Delete(s.vaultPath)
	}
	if err != nil {
		s.logger.Error("vault rollback failed", slog.String("path", s.vaultPath), slog.String("error", err.Error()))
	}
}

// Reload re-reads the vault with the session password after an external
// change. It reports false when the file holds what this service last
// wrote. A file that no longer decrypts makes the session read-only.
func (s *Service) Reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return false, apperr.ErrLocked
	}
	blob, err := s.files.Read(s.vaultPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		blob = nil
	case err != nil:
		return false, err
	}
	if s.written.Matches(s.vaultPath, blob) {
		return false, nil
	}

	coll, format, err := s.decodeVault(blob, s.session.pw())
	if err != nil {
		if isCryptoFailure(err) {
			s.session.unreadable = true
			s.logger.Error("vault changed on disk and no longer decrypts, session is read-only",
				slog.String("path", s.vaultPath), slog.String("error", err.Error()))
		}
		return false, err
	}
	s.session.accounts = coll
	s.session.format = format
	s.session.unreadable = false
	s.logger.Info("vault reloaded", slog.String("path", s.vaultPath), slog.Int("accounts", coll.Count()))
	s.record(ctx, audit.Event{Kind: audit.KindVaultReloaded, Detail: fmt.Sprintf("%d accounts", coll.Count())})
	s.notify(EventReloaded, -1)
	return true, nil
}

// Accounts returns the unlocked accounts in order.
func (s *Service) Accounts() ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, apperr.ErrLocked
	}
	return s.session.accounts.List(), nil
}

// Get returns the account at index i.
func (s *Service) Get(i int) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return models.Account{}, apperr.ErrLocked
	}
	return s.session.accounts.Get(i)
}

// Add normalises the secret of a manually entered account, validates it,
// appends it and saves. It returns the new index.
func (s *Service) Add(ctx context.Context, a models.Account) (int, error) {
	a.Secret = otp.NormalizeSecret(a.Secret)
	if err := a.Validate(); err != nil {
		return -1, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var idx int
	err := s.mutate(ctx, func(c *accounts.Collection) error {
		c.Add(a)
		idx = c.Count() - 1
		return nil
	})
	if err != nil {
		return -1, err
	}
	s.record(ctx, audit.Event{Kind: audit.KindAccountAdded, Account: a.DisplayName()})
	s.notify(EventAccountAdded, idx)
	return idx, nil
}

// Update replaces the account at index i. An empty secret keeps the stored
// one; any other secret must match it.
func (s *Service) Update(ctx context.Context, i int, a models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(ctx, func(c *accounts.Collection) error {
		cur, err := c.Get(i)
		if err != nil {
			return err
		}
		if a.Secret == "" {
			a.Secret = cur.Secret
		}
		if a.Secret != cur.Secret {
			return apperr.ErrSecretImmutable
		}
		if err := a.Validate(); err != nil {
			return err
		}
		return c.Update(i, a)
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Event{Kind: audit.KindAccountUpdated, Account: a.DisplayName()})
	s.notify(EventAccountUpdated, i)
	return nil
}

// Remove deletes the account at index i and saves.
func (s *Service) Remove(ctx context.Context, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed models.Account
	err := s.mutate(ctx, func(c *accounts.Collection) error {
		var err error
		if removed, err = c.Get(i); err != nil {
			return err
		}
		return c.Remove(i)
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Event{Kind: audit.KindAccountRemoved, Account: removed.DisplayName()})
	s.notify(EventAccountRemoved, i)
	return nil
}

// mutate applies fn to the session collection and saves. If fn or the save
// fails the collection is restored. Callers hold s.mu.
func (s *Service) mutate(ctx context.Context, fn func(*accounts.Collection) error) error {
	sess, err := s.writableSession()
	if err != nil {
		return err
	}
	snapshot := sess.accounts.List()
	if err := fn(sess.accounts); err != nil {
		sess.accounts = accounts.FromList(snapshot)
		return err
	}
	if err := s.saveLocked(ctx); err != nil {
		sess.accounts = accounts.FromList(snapshot)
		return err
	}
	return nil
}

func (s *Service) writableSession() (*Session, error) {
	if s.session == nil {
		return nil, apperr.ErrLocked
	}
	if s.session.unreadable {
		return nil, apperr.ErrVaultUnreadable
	}
	return s.session, nil
}

// Close locks the service. Called at shutdown.
func (s *Service) Close() {
	s.Lock()
}

func (s *Service) record(ctx context.Context, e audit.Event) {
	if err := s.log.Record(ctx, e); err != nil {
		s.logger.Warn("audit record failed", slog.String("kind", string(e.Kind)), slog.String("error", err.Error()))
	}
}

func (s *Service) notify(kind string, index int) {
	if s.notifier != nil {
		s.notifier.PublishVaultEvent(kind, index)
	}
}

// ActivityLog returns up to limit recent audit events, newest first.
func (s *Service) ActivityLog(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.log.Recent(ctx, limit)
}
