package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/zensync/internal/apperr"
	"github.com/starford/zensync/internal/syncer"
	"github.com/starford/zensync/internal/zenodo"
)

// Auth modes for the status API.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Zenodo ZenodoConfig      `yaml:"zenodo"`
	Files  FilesConfig       `yaml:"files"`
	Ledger LedgerConfig      `yaml:"ledger"`
	Sync   SyncConfig        `yaml:"sync"`
	Watch  WatchConfig       `yaml:"watch"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Zenodo.Validate(); err != nil {
		return err
	}
	if err := c.Files.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// HTTPConfig holds HTTP server configuration for the serve command.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ZenodoConfig selects the deposit service instance and credential.
//
// Env is "production" (default) or "sandbox". BaseURL, when set, overrides
// the instance chosen by Env.
type ZenodoConfig struct {
	Env     string        `yaml:"env"`
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the Zenodo configuration. Any env other than "sandbox"
// selects production. The token is checked separately by RequireToken,
// since offline commands run without one.
func (c *ZenodoConfig) Validate() error {
	if c.Env == "" {
		c.Env = zenodo.EnvProduction
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Env, validation.Required),
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// RequireToken reports a missing token as apperr.ErrConfig.
func (c *ZenodoConfig) RequireToken() error {
	if c.Token == "" {
		return fmt.Errorf("ZENODO_TOKEN is not set: %w", apperr.ErrConfig)
	}
	return nil
}

// ResolvedBaseURL returns the instance URL requests are sent to.
func (c *ZenodoConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return zenodo.BaseURLFor(c.Env)
}

// Client returns the connection settings for a zenodo.Client.
func (c *ZenodoConfig) Client() zenodo.Config {
	return zenodo.Config{
		BaseURL: c.ResolvedBaseURL(),
		Token:   c.Token,
		Timeout: c.Timeout,
	}
}

// FilesConfig locates the workspace documents. Paths are relative to Root.
type FilesConfig struct {
	Root         string `yaml:"root"`
	BaseMetadata string `yaml:"base_metadata"`
	FileMetadata string `yaml:"file_metadata"`
	State        string `yaml:"state"`
	Pattern      string `yaml:"pattern"`
}

// Validate validates the files configuration.
func (c *FilesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.BaseMetadata, validation.Required),
		validation.Field(&c.FileMetadata, validation.Required),
		validation.Field(&c.State, validation.Required),
		validation.Field(&c.Pattern, validation.Required),
	)
}

// Paths returns the orchestrator view of the files configuration.
func (c *FilesConfig) Paths() syncer.Paths {
	return syncer.Paths{
		BaseMetadata: c.BaseMetadata,
		FileMetadata: c.FileMetadata,
		State:        c.State,
		Pattern:      c.Pattern,
	}
}

// LedgerConfig holds the publication history database settings.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// SyncConfig holds defaults for sync runs.
type SyncConfig struct {
	SkipUnchanged bool `yaml:"skip_unchanged"`
	DryRun        bool `yaml:"dry_run"`
}

// Options returns the run options.
func (c *SyncConfig) Options() syncer.Options {
	return syncer.Options{SkipUnchanged: c.SkipUnchanged, DryRun: c.DryRun}
}

// WatchConfig holds file-watcher settings used by watch and serve.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// AuthConfig holds authentication configuration for the status API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// NewDefaultConfig returns a new Config with the conventional workspace
// layout: zenodo.json, zenodo.files.json, .zenodo_state.json and out/*.pdf.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Zenodo: ZenodoConfig{
			Env: zenodo.EnvProduction,
		},
		Files: FilesConfig{
			Root:         ".",
			BaseMetadata: "zenodo.json",
			FileMetadata: "zenodo.files.json",
			State:        ".zenodo_state.json",
			Pattern:      "out/*.pdf",
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    ".zenodo_history.db",
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
