// Package settings reads and writes the user preference document
// (config.json in the data directory).
//
// The document is a flat JSON object. Known keys are typed fields; keys this
// version does not know are kept and written back unchanged.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/storage"
)

// DefaultFile is the settings file name inside the data directory.
const DefaultFile = "config.json"

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

const (
	keyTheme        = "theme"
	keyAutoCopy     = "auto_copy"
	keyShowSeconds  = "show_seconds"
	keyEncryption   = "encryption_enabled"
	keyPasswordHash = "encryption_password_hash"
)

// Settings is the preference document.
type Settings struct {
	Theme                  string `json:"theme"`
	AutoCopy               bool   `json:"auto_copy"`
	ShowSeconds            bool   `json:"show_seconds"`
	EncryptionEnabled      bool   `json:"encryption_enabled"`
	EncryptionPasswordHash string `json:"encryption_password_hash"`

	extra map[string]json.RawMessage
	// damaged lists known keys whose stored value could not be decoded;
	// keyDocument marks a file that is not a JSON object at all.
	damaged []string
}

const keyDocument = "*"

// Defaults returns the document used when none exists.
func Defaults() Settings {
	return Settings{Theme: ThemeLight, ShowSeconds: true}
}

// Validate checks field values.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Theme, validation.Required, validation.In(ThemeLight, ThemeDark)),
		validation.Field(&s.EncryptionPasswordHash,
			validation.When(s.EncryptionEnabled, validation.Required.Error("is required when encryption is enabled"))),
	)
}

// Extra returns the raw value of a key this version does not interpret.
func (s Settings) Extra(key string) (json.RawMessage, bool) {
	v, ok := s.extra[key]
	return v, ok
}

// MarshalJSON writes known fields merged with the preserved unknown keys.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.document())
}

// Public returns the document without the password digest.
func (s Settings) Public() map[string]any {
	doc := s.document()
	delete(doc, keyPasswordHash)
	return doc
}

func (s Settings) document() map[string]any {
	doc := make(map[string]any, len(s.extra)+5)
	for k, v := range s.extra {
		doc[k] = v
	}
	doc[keyTheme] = s.Theme
	doc[keyAutoCopy] = s.AutoCopy
	doc[keyShowSeconds] = s.ShowSeconds
	doc[keyEncryption] = s.EncryptionEnabled
	doc[keyPasswordHash] = s.EncryptionPasswordHash
	return doc
}

// UnmarshalJSON reads a settings object. Missing known keys keep their
// default values.
func (s *Settings) UnmarshalJSON(data []byte) error {
	out, err := decode(data)
	if err != nil {
		return err
	}
	if len(out.damaged) > 0 {
		return fmt.Errorf("settings: %s: wrong type", strings.Join(out.damaged, ", "))
	}
	*s = out
	return nil
}

// Damaged reports the keys whose stored values could not be decoded.
func (s Settings) Damaged() []string {
	return s.damaged
}

// SetEncryption sets both encryption fields. It repairs a document whose
// encryption fields could not be read, so it can be saved again.
func (s *Settings) SetEncryption(enabled bool, digest string) {
	s.EncryptionEnabled = enabled
	s.EncryptionPasswordHash = digest
	s.damaged = slices.DeleteFunc(s.damaged, func(k string) bool {
		return k == keyDocument || k == keyEncryption || k == keyPasswordHash
	})
}

// protectedDamage reports whether saving s would overwrite encryption
// fields that were never read.
func (s Settings) protectedDamage() bool {
	return slices.ContainsFunc(s.damaged, func(k string) bool {
		return k == keyDocument || k == keyEncryption || k == keyPasswordHash
	})
}

// decode reads a settings object key by key. A known key with a value of
// the wrong type keeps its default and is listed in damaged; every other
// key survives.
func decode(data []byte) (Settings, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Settings{}, err
	}
	if doc == nil {
		return Settings{}, errors.New("settings: document is not an object")
	}
	out := Defaults()
	fields := map[string]any{
		keyTheme:        &out.Theme,
		keyAutoCopy:     &out.AutoCopy,
		keyShowSeconds:  &out.ShowSeconds,
		keyEncryption:   &out.EncryptionEnabled,
		keyPasswordHash: &out.EncryptionPasswordHash,
	}
	for k, raw := range doc {
		dst, known := fields[k]
		if !known {
			if out.extra == nil {
				out.extra = make(map[string]json.RawMessage)
			}
			out.extra[k] = raw
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			out.damaged = append(out.damaged, k)
		}
	}
	slices.Sort(out.damaged)
	return out, nil
}

// Store loads and saves the settings document through a storage provider.
type Store struct {
	files  storage.Provider
	path   string
	logger *slog.Logger
}

// NewStore returns a Store for the file at path (relative to the provider root).
func NewStore(files storage.Provider, path string, logger *slog.Logger) *Store {
	if path == "" {
		path = DefaultFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{files: files, path: path, logger: logger}
}

// Path returns the document path relative to the provider root.
func (st *Store) Path() string {
	return st.path
}

// Load reads the document. A missing file yields defaults. A document that
// is not a JSON object also yields defaults, with a warning, and a known key
// of the wrong type keeps its default; Save refuses to write such a document
// over unread encryption fields. An unknown theme falls back to light.
func (st *Store) Load() (Settings, error) {
	data, err := st.files.Read(st.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), err
	}
	s, err := decode(data)
	if err != nil {
		st.logger.Warn("settings: invalid document, using defaults",
			slog.String("path", st.path), slog.String("error", err.Error()))
		s = Defaults()
		s.damaged = []string{keyDocument}
		return s, nil
	}
	if len(s.damaged) > 0 {
		st.logger.Warn("settings: values of the wrong type, using defaults for them",
			slog.String("path", st.path), slog.String("keys", strings.Join(s.damaged, ", ")))
	}
	if err := validation.Validate(s.Theme, validation.In(ThemeLight, ThemeDark)); err != nil || s.Theme == "" {
		st.logger.Warn("settings: unknown theme, using default",
			slog.String("path", st.path), slog.String("theme", s.Theme))
		s.Theme = ThemeLight
	}
	return s, nil
}

// Save validates s and writes it as indented JSON.
func (st *Store) Save(s Settings) error {
	if s.protectedDamage() {
		return fmt.Errorf("%w: encryption fields in %s cannot be read; fix or remove the file",
			apperr.ErrInvalidSettings, st.path)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidSettings, err)
	}
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	return st.files.Write(st.path, data)
}
