package internal

import (
	"io"
	"net/http"

	"github.com/starford/postdesk/internal/auth"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	stdout     io.Writer
	stderr     io.Writer
	httpClient *http.Client
	prompt     auth.Prompt
	version    string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput redirects command output and diagnostics (logs, progress,
// save notifications).
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *application) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithHTTPClient sets the client shared by the platform gateway, the
// OAuth flow and uploads.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *application) {
		a.httpClient = hc
	}
}

// WithPrompt replaces the device-code prompt.
func WithPrompt(p auth.Prompt) Option {
	return func(a *application) {
		a.prompt = p
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
