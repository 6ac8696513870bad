package vaultservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/settings"
	"github.com/starford/lightauth/internal/storage"
	"github.com/starford/lightauth/internal/vaultcrypto"
)

// Written by LightAuth 1.x: the vault of an install with
// encryption enabled (password "hunter2") and one without.
const (
	legacyVaultHunter2  = "gAAAAABlU_EAAAECAwQFBgcICQoLDA0ODwQU6oFB-aWGstjdI8ATIrESXUIb0GZlK4GM6zG4AFruF2XIlfJ_HcaQb3KlriRJbPcaktK0g6z0v0MB32D3B3N3mh1yES6nFI-1IYFlGenYEIkqa438XJvb7jQc9dqdALnfk4ek766w29U7x5dgtP7zYOGNNxYjAQB6BTGWfqqM"
	legacyVaultEmpty    = "gAAAAABlU_EAEBESExQVFhcYGRobHB0eHxUBnMNwCjsxsfCKI1zWPjw4MsNs8TAJgCsXM3OLxTXOegyvpMTGYcI3KZjk6UByw7Qbt61n8vL3XTTJKa1kagbtqZwW9JC_9PAU91jec40Si8d_-DTZo730-VRA2tx3TfPL02g4tyDvGXyR6y52zHpXP0mfDhldWyCBzKuSavd-"
	legacyDigestHunter2 = "d069d04203c93b18cc20b78366e7447067472098e40ff42f2d0007d4693fb5eb"
)

type recordedEvent struct {
	kind  string
	index int
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *fakeNotifier) PublishVaultEvent(kind string, index int) {
	n.mu.Lock()
	n.events = append(n.events, recordedEvent{kind, index})
	n.mu.Unlock()
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.kind
	}
	return out
}

func newTestService(t *testing.T, opts ...Option) (*Service, *storage.FS) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	base := []Option{
		WithCodec(vaultcrypto.NewCodec(vaultcrypto.WithIterations(vaultcrypto.MinIterations))),
		WithLogger(logger),
	}
	return New(fs, append(base, opts...)...), fs
}

func unlock(t *testing.T, s *Service, password string) {
	t.Helper()
	ok, err := s.Unlock(context.Background(), password)
	if err != nil || !ok {
		t.Fatalf("Unlock = %v, %v", ok, err)
	}
}

var (
	alice = models.Account{Name: "alice", Issuer: "GitHub", Secret: "JBSWY3DPEHPK3PXP"}
	bob   = models.Account{Name: "bob", Secret: "GEZDGNBVGY3TQOJQ"}
)

func TestLoadVault_MissingAndEmptyFile(t *testing.T) {
	s, fs := newTestService(t)

	coll, err := s.LoadVault("")
	if err != nil || coll.Count() != 0 {
		t.Fatalf("missing file: count=%d err=%v", coll.Count(), err)
	}

	if err := fs.Write(DefaultVaultFile, nil); err != nil {
		t.Fatal(err)
	}
	coll, err = s.LoadVault("anything")
	if err != nil || coll.Count() != 0 {
		t.Fatalf("empty file: count=%d err=%v", coll.Count(), err)
	}
}

func TestLoadVault_WrongPasswordFailsClosed(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s, "")
	if _, err := s.Add(context.Background(), alice); err != nil {
		t.Fatal(err)
	}
	coll, err := s.LoadVault("not-the-password")
	if !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Errorf("err = %v, want ErrDecryptionFailed", err)
	}
	if coll == nil || coll.Count() != 0 {
		t.Error("failed load returned accounts")
	}
}

func TestLockedOperations(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.Accounts(); !errors.Is(err, apperr.ErrLocked) {
		t.Errorf("Accounts err = %v", err)
	}
	if _, err := s.Add(ctx, alice); !errors.Is(err, apperr.ErrLocked) {
		t.Errorf("Add err = %v", err)
	}
	if err := s.SaveVault(ctx); !errors.Is(err, apperr.ErrLocked) {
		t.Errorf("SaveVault err = %v", err)
	}
	if _, err := s.Codes(time.Now()); !errors.Is(err, apperr.ErrLocked) {
		t.Errorf("Codes err = %v", err)
	}
}

func TestAddPersistsAcrossSessions(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")

	idx, err := s.Add(ctx, models.Account{Name: "alice", Issuer: "GitHub", Secret: "jbsw y3dp-ehpk 3pxp=="})
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 {
		t.Errorf("index = %d", idx)
	}
	s.Lock()
	if s.Unlocked() {
		t.Fatal("still unlocked after Lock")
	}

	unlock(t, s, "")
	list, _ := s.Accounts()
	if len(list) != 1 || list[0] != alice {
		t.Errorf("accounts = %+v", list)
	}
}

func TestAdd_Invalid(t *testing.T) {
	s, _ := newTestService(t)
	unlock(t, s, "")
	if _, err := s.Add(context.Background(), models.Account{Name: "x", Secret: "189!"}); !errors.Is(err, apperr.ErrInvalidSecret) {
		t.Errorf("err = %v, want ErrInvalidSecret", err)
	}
	if _, err := s.Add(context.Background(), models.Account{Name: "  ", Secret: "ABC"}); !errors.Is(err, apperr.ErrInvalidAccount) {
		t.Errorf("err = %v, want ErrInvalidAccount", err)
	}
}

func TestUpdate(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)

	if err := s.Update(ctx, 0, models.Account{Name: "alice2", Issuer: "GitLab"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(0)
	if got.Name != "alice2" || got.Issuer != "GitLab" || got.Secret != alice.Secret {
		t.Errorf("updated = %+v", got)
	}

	err := s.Update(ctx, 0, models.Account{Name: "alice", Secret: "GEZDGNBVGY3TQOJQ"})
	if !errors.Is(err, apperr.ErrSecretImmutable) {
		t.Errorf("err = %v, want ErrSecretImmutable", err)
	}
	if err := s.Update(ctx, 3, alice); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	if err := s.Update(ctx, 0, models.Account{Name: "", Secret: alice.Secret}); !errors.Is(err, apperr.ErrInvalidAccount) {
		t.Errorf("err = %v, want ErrInvalidAccount", err)
	}
	got, _ = s.Get(0)
	if got.Name != "alice2" {
		t.Error("failed update changed the record")
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)
	_, _ = s.Add(ctx, bob)

	if err := s.Remove(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, 5); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	coll, err := s.LoadVault("")
	if err != nil {
		t.Fatal(err)
	}
	if list := coll.List(); len(list) != 1 || list[0] != bob {
		t.Errorf("persisted = %+v", list)
	}
}

func TestSetPassword_ReencryptsVault(t *testing.T) {
	s, fs := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)

	if err := s.SetPassword(ctx, "", "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadVault(""); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Errorf("old password still opens the vault: %v", err)
	}
	coll, err := s.LoadVault("p1")
	if err != nil || coll.Count() != 1 {
		t.Fatalf("new password: count=%d err=%v", coll.Count(), err)
	}

	prefs, err := settings.NewStore(fs, "", nil).Load()
	if err != nil {
		t.Fatal(err)
	}
	if !prefs.EncryptionEnabled || !strings.HasPrefix(prefs.EncryptionPasswordHash, "$argon2id$") {
		t.Errorf("settings = %+v", prefs)
	}

	s.Lock()
	if ok, err := s.Unlock(ctx, "wrong"); ok || err != nil {
		t.Errorf("wrong password: ok=%v err=%v", ok, err)
	}
	unlock(t, s, "p1")

	if err := s.SetPassword(ctx, "wrong", "p2"); !errors.Is(err, apperr.ErrWrongPassword) {
		t.Errorf("err = %v, want ErrWrongPassword", err)
	}
	if err := s.SetPassword(ctx, "p1", ""); err != nil {
		t.Fatal(err)
	}
	if coll, err := s.LoadVault(""); err != nil || coll.Count() != 1 {
		t.Errorf("after disabling: count=%d err=%v", coll.Count(), err)
	}
	if st := s.Status(); st.EncryptionEnabled {
		t.Error("encryption still enabled")
	}
}

// failingWrites rejects writes to one path.
type failingWrites struct {
	storage.Provider
	path string
}

func (f failingWrites) Write(path string, content []byte) error {
	if path == f.path {
		return errors.New("disk full")
	}
	return f.Provider.Write(path, content)
}

func TestSetPassword_RollsBackWhenSettingsWriteFails(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := New(failingWrites{Provider: fs, path: settings.DefaultFile},
		WithCodec(vaultcrypto.NewCodec(vaultcrypto.WithIterations(vaultcrypto.MinIterations))),
		WithLogger(logger))
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)
	before, _ := fs.Read(DefaultVaultFile)

	if err := s.SetPassword(ctx, "", "p1"); err == nil {
		t.Fatal("SetPassword succeeded")
	}
	after, _ := fs.Read(DefaultVaultFile)
	if string(before) != string(after) {
		t.Error("vault not rolled back")
	}
	if _, err := s.LoadVault(""); err != nil {
		t.Errorf("vault no longer opens with the old password: %v", err)
	}
	if _, err := s.Add(ctx, bob); err != nil {
		t.Errorf("session unusable after rollback: %v", err)
	}
	if coll, err := s.LoadVault(""); err != nil || coll.Count() != 2 {
		t.Errorf("after rollback: count=%d err=%v", coll.Count(), err)
	}
}

func TestUnlock_LegacyInstallMigrates(t *testing.T) {
	s, fs := newTestService(t)
	ctx := context.Background()
	_ = fs.Write(DefaultVaultFile, []byte(legacyVaultHunter2))
	_ = fs.Write(settings.DefaultFile, []byte(`{"theme":"dark","auto_copy":false,"show_seconds":true,`+
		`"encryption_enabled":true,"encryption_password_hash":"`+legacyDigestHunter2+`"}`))

	unlock(t, s, "hunter2")
	st := s.Status()
	if !st.NeedsMigration || st.Format != "legacy" || st.Accounts != 1 {
		t.Errorf("status = %+v", st)
	}
	prefs, _ := s.Settings()
	if !strings.HasPrefix(prefs.EncryptionPasswordHash, "$argon2id$") {
		t.Error("legacy digest not upgraded on unlock")
	}
	if prefs.Theme != settings.ThemeDark {
		t.Error("other settings lost during digest upgrade")
	}

	if err := s.SaveVault(ctx); err != nil {
		t.Fatal(err)
	}
	blob, _ := fs.Read(DefaultVaultFile)
	if vaultcrypto.DetectFormat(blob) != vaultcrypto.FormatV2 {
		t.Error("vault not rewritten in v2 format")
	}
	coll, err := s.LoadVault("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if list := coll.List(); len(list) != 1 || list[0].Name != "alice" || list[0].Secret != "JBSWY3DPEHPK3PXP" {
		t.Errorf("migrated accounts = %+v", list)
	}
}

func TestUnlock_LegacyWithoutEncryption(t *testing.T) {
	s, fs := newTestService(t)
	_ = fs.Write(DefaultVaultFile, []byte(legacyVaultEmpty))
	unlock(t, s, "ignored when encryption is disabled")
	list, _ := s.Accounts()
	if len(list) != 1 || list[0].Issuer != "GitHub" {
		t.Errorf("accounts = %+v", list)
	}
}

func TestUnlock_UnreadableVaultIsReadOnly(t *testing.T) {
	s, fs := newTestService(t)
	ctx := context.Background()
	_ = fs.Write(DefaultVaultFile, []byte(legacyVaultHunter2))

	// Encryption disabled, but the vault was sealed with a password.
	ok, err := s.Unlock(ctx, "")
	if !ok || !errors.Is(err, apperr.ErrVaultUnreadable) {
		t.Fatalf("Unlock = %v, %v", ok, err)
	}
	if _, err := s.Add(ctx, alice); !errors.Is(err, apperr.ErrVaultUnreadable) {
		t.Errorf("Add err = %v, want ErrVaultUnreadable", err)
	}
	blob, _ := fs.Read(DefaultVaultFile)
	if string(blob) != legacyVaultHunter2 {
		t.Error("unreadable vault was overwritten")
	}
}

func TestExportImport_PreservesOrder(t *testing.T) {
	src, _ := newTestService(t)
	ctx := context.Background()
	unlock(t, src, "")
	carol := models.Account{Name: "carol", Issuer: "AWS", Secret: "MFRGGZDFMZTWQ2LK"}
	for _, a := range []models.Account{alice, bob, carol} {
		if _, err := src.Add(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	for _, password := range []string{"", "bundle-pw"} {
		data, err := src.Export(ctx, nil, password, false)
		if err != nil {
			t.Fatal(err)
		}

		dst, _ := newTestService(t)
		unlock(t, dst, "")
		_, _ = dst.Add(ctx, bob)
		added, err := dst.Import(ctx, data, password, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(added) != 3 {
			t.Fatalf("added %d", len(added))
		}
		list, _ := dst.Accounts()
		want := []models.Account{bob, alice, bob, carol}
		if len(list) != len(want) {
			t.Fatalf("accounts = %+v", list)
		}
		for i := range want {
			if list[i] != want[i] {
				t.Errorf("password %q: account %d = %+v, want %+v", password, i, list[i], want[i])
			}
		}
	}
}

func TestExport_Subset(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)
	_, _ = s.Add(ctx, bob)

	data, err := s.Export(ctx, []int{1, 1}, "", false)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.PreviewImport(data, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != bob {
		t.Errorf("exported = %+v", got)
	}
	if _, err := s.Export(ctx, []int{7}, "", false); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestImport_SubsetAndFailureLeavesVault(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	data, _ := s.bundler.Export([]models.Account{alice, bob}, "pw")

	if _, err := s.Import(ctx, data, "", nil); !errors.Is(err, apperr.ErrPasswordRequired) {
		t.Errorf("err = %v, want ErrPasswordRequired", err)
	}
	if _, err := s.Import(ctx, data, "nope", nil); !errors.Is(err, apperr.ErrDecryptionFailed) {
		t.Errorf("err = %v, want ErrDecryptionFailed", err)
	}
	if list, _ := s.Accounts(); len(list) != 0 {
		t.Fatalf("failed import changed the vault: %+v", list)
	}

	added, err := s.Import(ctx, data, "pw", []int{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 1 || added[0] != bob {
		t.Errorf("added = %+v", added)
	}
}

func TestCodes(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)
	_, _ = s.Add(ctx, bob)

	now := time.Unix(59, 0)
	views, err := s.Codes(now)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("len = %d", len(views))
	}
	for i, v := range views {
		if v.Index != i || len(v.Code) != 6 || v.RemainingSeconds != 1 || v.Error != "" {
			t.Errorf("view %d = %+v", i, v)
		}
	}
	one, err := s.CurrentCode(1, now)
	if err != nil {
		t.Fatal(err)
	}
	if one != views[1] {
		t.Errorf("CurrentCode = %+v, Codes[1] = %+v", one, views[1])
	}
	if _, err := s.CurrentCode(2, now); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestReload(t *testing.T) {
	s, fs := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)

	changed, err := s.Reload(ctx)
	if err != nil || changed {
		t.Fatalf("own write: changed=%v err=%v", changed, err)
	}

	other, _ := newTestService(t)
	unlock(t, other, "")
	_, _ = other.Add(ctx, bob)
	_, _ = other.Add(ctx, alice)
	blob, _ := other.files.Read(DefaultVaultFile)
	_ = fs.Write(DefaultVaultFile, blob)

	changed, err = s.Reload(ctx)
	if err != nil || !changed {
		t.Fatalf("external write: changed=%v err=%v", changed, err)
	}
	if list, _ := s.Accounts(); len(list) != 2 || list[0] != bob {
		t.Errorf("accounts = %+v", list)
	}

	_ = fs.Write(DefaultVaultFile, []byte("garbage"))
	if _, err := s.Reload(ctx); !errors.Is(err, apperr.ErrNotCiphertext) {
		t.Errorf("err = %v, want ErrNotCiphertext", err)
	}
	if !s.Status().Unreadable {
		t.Error("session not read-only after undecryptable reload")
	}
}

func TestUpdatePreferences(t *testing.T) {
	s, _ := newTestService(t)
	dark := settings.ThemeDark
	yes := true
	got, err := s.UpdatePreferences(Preferences{Theme: &dark, AutoCopy: &yes})
	if err != nil {
		t.Fatal(err)
	}
	if got.Theme != dark || !got.AutoCopy || !got.ShowSeconds {
		t.Errorf("settings = %+v", got)
	}
	bad := "neon"
	if _, err := s.UpdatePreferences(Preferences{Theme: &bad}); !errors.Is(err, apperr.ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
}

func TestUpdatePreferences_KeepsEncryptionOverWrongTypedKey(t *testing.T) {
	s, fs := newTestService(t)
	ctx := context.Background()
	unlock(t, s, "")
	if _, err := s.Add(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPassword(ctx, "", "pw"); err != nil {
		t.Fatal(err)
	}

	raw, err := fs.Read(settings.DefaultFile)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	doc["auto_copy"] = "no"
	doc["window"] = "maximized"
	raw, _ = json.Marshal(doc)
	if err := fs.Write(settings.DefaultFile, raw); err != nil {
		t.Fatal(err)
	}

	dark := settings.ThemeDark
	if _, err := s.UpdatePreferences(Preferences{Theme: &dark}); err != nil {
		t.Fatal(err)
	}

	raw, _ = fs.Read(settings.DefaultFile)
	var after map[string]any
	if err := json.Unmarshal(raw, &after); err != nil {
		t.Fatal(err)
	}
	if after["encryption_enabled"] != true || after["encryption_password_hash"] == "" {
		t.Errorf("encryption fields lost: %v", after)
	}
	if after["window"] != "maximized" || after["theme"] != dark || after["auto_copy"] != false {
		t.Errorf("document = %v", after)
	}

	s.Lock()
	ok, err := s.Unlock(ctx, "pw")
	if !ok || err != nil {
		t.Fatalf("Unlock = %v, %v", ok, err)
	}
	if n, _ := s.Accounts(); len(n) != 1 {
		t.Errorf("accounts = %d, want 1", len(n))
	}
}

func TestUpdatePreferences_RefusesOverUnreadableDocument(t *testing.T) {
	s, fs := newTestService(t)
	if err := fs.Write(settings.DefaultFile, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	dark := settings.ThemeDark
	if _, err := s.UpdatePreferences(Preferences{Theme: &dark}); !errors.Is(err, apperr.ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
	raw, _ := fs.Read(settings.DefaultFile)
	if string(raw) != "{not json" {
		t.Errorf("document overwritten: %s", raw)
	}
}

func TestSetPassword_RepairsUnreadableDocument(t *testing.T) {
	s, fs := newTestService(t)
	ctx := context.Background()
	if err := fs.Write(settings.DefaultFile, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	unlock(t, s, "")
	if err := s.SetPassword(ctx, "", "pw"); err != nil {
		t.Fatal(err)
	}
	s.Lock()
	unlock(t, s, "pw")
}

func TestNew_SettingsStoreUsesConfiguredLogger(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := New(fs, WithSettingsFile("prefs.json"), WithLogger(logger))

	if err := fs.Write("prefs.json", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Settings(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "settings: invalid document") {
		t.Errorf("warning not written to the configured logger: %q", buf.String())
	}
	if s.SettingsPath() != "prefs.json" {
		t.Errorf("settings path = %q", s.SettingsPath())
	}
}

func TestNotifier(t *testing.T) {
	n := &fakeNotifier{}
	s, _ := newTestService(t, WithNotifier(n))
	ctx := context.Background()
	unlock(t, s, "")
	_, _ = s.Add(ctx, alice)
	_ = s.Remove(ctx, 0)
	s.Lock()

	want := []string{EventUnlocked, EventAccountAdded, EventAccountRemoved, EventLocked}
	got := n.kinds()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSession_CloseWipesPassword(t *testing.T) {
	sess := newSession("secret", nil, vaultcrypto.FormatV2)
	buf := sess.password
	sess.Close()
	for _, b := range buf {
		if b != 0 {
			t.Fatal("password buffer not zeroed")
		}
	}
	if sess.password != nil {
		t.Error("password not dropped")
	}
}
