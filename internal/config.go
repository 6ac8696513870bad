package internal

import (
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lightauth/internal/settings"
	"github.com/starford/lightauth/internal/vaultcrypto"
	"github.com/starford/lightauth/internal/vaultservice"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Data   DataConfig        `yaml:"data"`
	Auth   AuthConfig        `yaml:"auth"`
	Crypto CryptoConfig      `yaml:"crypto"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Crypto.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DataConfig locates the vault, the settings document and the audit
// database. VaultFile and SettingsFile are relative to Dir; AuditDB is
// relative to Dir unless absolute.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	VaultFile    string `yaml:"vault_file"`
	SettingsFile string `yaml:"settings_file"`
	AuditDB      string `yaml:"audit_db"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.VaultFile, validation.Required, validation.By(relativePath)),
		validation.Field(&c.SettingsFile, validation.Required, validation.By(relativePath)),
	)
}

// AuditPath returns the audit database path, or "" when auditing is off.
func (c *DataConfig) AuditPath() string {
	if c.AuditDB == "" || filepath.IsAbs(c.AuditDB) {
		return c.AuditDB
	}
	return filepath.Join(c.Dir, c.AuditDB)
}

func relativePath(value interface{}) error {
	p, _ := value.(string)
	if filepath.IsAbs(p) {
		return fmt.Errorf("must be relative to data.dir")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required; the server binds to loopback.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled".
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CryptoConfig tunes key derivation for newly written vaults and bundles.
type CryptoConfig struct {
	KDFIterations int `yaml:"kdf_iterations"`
}

// Validate validates the crypto configuration.
func (c *CryptoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.KDFIterations, validation.Required,
			validation.Min(vaultcrypto.MinIterations), validation.Max(vaultcrypto.MaxIterations)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8787,
			},
		},
		Data: DataConfig{
			Dir:          "./data",
			VaultFile:    vaultservice.DefaultVaultFile,
			SettingsFile: settings.DefaultFile,
			AuditDB:      "audit.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Crypto: CryptoConfig{
			KDFIterations: vaultcrypto.DefaultIterations,
		},
	}
}
