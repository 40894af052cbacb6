package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Dashboard auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Upload backends.
const (
	UploadSignedURL = "signed-url"
	UploadS3        = "s3"
)

// DefaultBaseURL is the platform used when none is configured.
const DefaultBaseURL = "https://joel-x42.coursebuilder.dev"

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Platform  PlatformConfig    `yaml:"platform"`
	Sandbox   SandboxConfig     `yaml:"sandbox"`
	State     StateConfig       `yaml:"state"`
	Auth      AuthConfig        `yaml:"auth"`
	Dashboard DashboardConfig   `yaml:"dashboard"`
	Video     VideoConfig       `yaml:"video"`
	Upload    UploadConfig      `yaml:"upload"`
	Editor    EditorConfig      `yaml:"editor"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Platform, &c.Sandbox, &c.State, &c.Auth, &c.Dashboard, &c.Video, &c.Upload,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
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

// HTTPConfig holds dashboard HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// PlatformConfig locates the content platform.
type PlatformConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Validate validates the platform configuration.
func (c *PlatformConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
	)
}

// SandboxConfig describes the directory that mirrors editable posts.
type SandboxConfig struct {
	Path          string `yaml:"path"`
	Scheme        string `yaml:"scheme"`
	Extension     string `yaml:"extension"`
	RemoveOnClose bool   `yaml:"remove_on_close"`
}

// Validate validates the sandbox configuration.
func (c *SandboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Scheme, validation.Required, is.Alpha),
		validation.Field(&c.Extension, validation.Required, is.Alphanumeric),
	)
}

// StateConfig holds the SQLite state database location.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// LockDir is where per-document save locks live.
func (c *StateConfig) LockDir() string {
	return filepath.Join(filepath.Dir(c.Path), "locks")
}

// AuthConfig holds OAuth device-flow configuration. An empty ClientID
// triggers dynamic client registration.
type AuthConfig struct {
	ClientID      string        `yaml:"client_id"`
	DeviceTimeout time.Duration `yaml:"device_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DeviceTimeout, validation.Min(time.Second)),
		validation.Field(&c.MaxAttempts, validation.Min(1), validation.Max(20)),
	)
}

// DashboardConfig controls access to the local dashboard.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type DashboardConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the dashboard configuration.
func (c *DashboardConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("dashboard: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when dashboard authentication is active.
func (c *DashboardConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// VideoConfig controls video status tracking.
type VideoConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxPollErrors int           `yaml:"max_poll_errors"`
	StreamURL     string        `yaml:"stream_url"`
	MP4BaseURL    string        `yaml:"mp4_base_url"`
}

// Validate validates the video configuration.
func (c *VideoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PollInterval, validation.Min(100*time.Millisecond)),
		validation.Field(&c.MaxPollErrors, validation.Min(1)),
		validation.Field(&c.StreamURL, is.RequestURL),
		validation.Field(&c.MP4BaseURL, is.URL),
	)
}

// UploadConfig selects how video files reach storage.
type UploadConfig struct {
	Backend string   `yaml:"backend"`
	S3      S3Config `yaml:"s3"`
}

// Validate validates the upload configuration.
func (c *UploadConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(UploadSignedURL, UploadS3)),
	); err != nil {
		return err
	}
	if c.Backend == UploadS3 {
		return c.S3.Validate()
	}
	return nil
}

// S3Config holds direct bucket upload settings.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicBaseURL   string `yaml:"public_base_url"`
	PathStyle       bool   `yaml:"path_style"`
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.PublicBaseURL, validation.Required, is.URL),
		validation.Field(&c.Endpoint, is.URL),
	)
}

// EditorConfig chooses the command used by "posts edit".
type EditorConfig struct {
	Command string `yaml:"command"`
}

// Resolve returns the configured editor, then $VISUAL, then $EDITOR, then vi.
func (c *EditorConfig) Resolve() string {
	for _, v := range []string{c.Command, os.Getenv("VISUAL"), os.Getenv("EDITOR")} {
		if v != "" {
			return v
		}
	}
	return "vi"
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	dir := defaultDataDir()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelWarn,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8080,
			},
		},
		Platform: PlatformConfig{
			BaseURL: DefaultBaseURL,
		},
		Sandbox: SandboxConfig{
			Path:      filepath.Join(dir, "sandbox"),
			Scheme:    "builder",
			Extension: "mdx",
		},
		State: StateConfig{
			Path: filepath.Join(dir, "postdesk.db"),
		},
		Auth: AuthConfig{
			DeviceTimeout: 15 * time.Minute,
			MaxAttempts:   5,
		},
		Dashboard: DashboardConfig{
			Mode: AuthModeDisabled,
		},
		Video: VideoConfig{
			PollInterval:  5 * time.Second,
			MaxPollErrors: 5,
			MP4BaseURL:    "https://stream.mux.com",
		},
		Upload: UploadConfig{
			Backend: UploadSignedURL,
		},
	}
}

// defaultDataDir is the per-user directory holding the sandbox and state.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "postdesk")
	}
	return ".postdesk"
}
