// Package auth implements the OAuth device authorization flow against the
// platform and keeps the stored token set fresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/events"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/state"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// DefaultMaxAttempts bounds refresh and re-authentication cycles.
const DefaultMaxAttempts = 5

var errDeviceExpired = errors.New("device code expired")

// Prompt shows the user where to authorize the device.
type Prompt func(verificationURI, userCode, completeURI string)

// Timer is the part of *time.Timer the abort timer needs.
type Timer interface {
	Stop() bool
}

// Config configures an Authenticator.
type Config struct {
	// BaseURL is the platform root; the issuer is BaseURL + "/oauth".
	BaseURL string
	// ClientID skips dynamic registration when set.
	ClientID string
	// DeviceTimeout bounds the poll when the server omits expires_in.
	DeviceTimeout time.Duration
	MaxAttempts   int
	Scopes        []string
}

// Authenticator owns the stored credentials.
type Authenticator struct {
	cfg    Config
	store  *state.DB
	bus    *events.Bus
	http   *http.Client
	logger *slog.Logger
	prompt Prompt

	now       func() time.Time
	afterFunc func(time.Duration, func()) Timer
	// login runs the interactive flow; replaced in tests.
	login func(ctx context.Context) (*oauth2.Token, error)

	mu       sync.Mutex
	provider *Provider
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the client used for every OAuth request.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Authenticator) { a.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// WithPrompt sets how the verification URI is shown.
func WithPrompt(p Prompt) Option {
	return func(a *Authenticator) { a.prompt = p }
}

// WithBus sets the bus that receives posts:refresh after login.
func WithBus(b *events.Bus) Option {
	return func(a *Authenticator) { a.bus = b }
}

// New creates an Authenticator persisting into store.
func New(cfg Config, store *state.DB, opts ...Option) *Authenticator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = 15 * time.Minute
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email"}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	a := &Authenticator{
		cfg:    cfg,
		store:  store,
		http:   http.DefaultClient,
		logger: slog.New(slog.DiscardHandler),
		prompt: func(string, string, string) {},
		now:    time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	a.login = a.deviceLogin
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authenticator) issuer() string { return a.cfg.BaseURL + "/oauth" }

func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.http)
}

// providerLocked discovers the provider once per Authenticator.
func (a *Authenticator) providerLocked(ctx context.Context) (Provider, error) {
	if a.provider != nil {
		return *a.provider, nil
	}
	p, err := discover(ctx, a.http, a.issuer())
	if err != nil {
		return Provider{}, err
	}
	a.provider = &p
	return p, nil
}

// clientIDLocked returns the configured id, the cached registered id, or
// registers a new client and caches it.
func (a *Authenticator) clientIDLocked(ctx context.Context, p Provider) (string, error) {
	if a.cfg.ClientID != "" {
		return a.cfg.ClientID, nil
	}
	var cached string
	if err := a.store.Get(state.KeyClientID, &cached); err == nil && cached != "" {
		return cached, nil
	} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	if p.RegistrationEndpoint == "" {
		return "", fmt.Errorf("auth: no client_id configured and provider does not support registration")
	}
	id, err := register(ctx, a.http, p.RegistrationEndpoint)
	if err != nil {
		return "", err
	}
	if err := a.store.Put(state.KeyClientID, id); err != nil {
		return "", err
	}
	a.logger.Info("registered oauth client", slog.String("client_id", id))
	return id, nil
}

func (a *Authenticator) oauthConfigLocked(ctx context.Context) (*oauth2.Config, Provider, error) {
	p, err := a.providerLocked(ctx)
	if err != nil {
		return nil, Provider{}, err
	}
	id, err := a.clientIDLocked(ctx, p)
	if err != nil {
		return nil, Provider{}, err
	}
	return &oauth2.Config{
		ClientID: id,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: p.DeviceAuthorizationEndpoint,
			TokenURL:      p.TokenEndpoint,
			AuthStyle:     oauth2.AuthStyleInParams,
		},
		Scopes: a.cfg.Scopes,
	}, p, nil
}

// deviceLogin runs the device authorization grant. The poll is aborted by
// a timer set to the device code lifetime; the timer is stopped on every
// return path.
func (a *Authenticator) deviceLogin(ctx context.Context) (*oauth2.Token, error) {
	cfg, _, err := a.oauthConfigLocked(ctx)
	if err != nil {
		return nil, &apperr.AuthError{Reason: "provider setup", Err: err}
	}
	octx := a.oauthContext(ctx)

	da, err := cfg.DeviceAuth(octx)
	if err != nil {
		return nil, &apperr.AuthError{Reason: "device authorization request", Err: err}
	}
	a.prompt(da.VerificationURI, da.UserCode, da.VerificationURIComplete)

	wait := a.cfg.DeviceTimeout
	if !da.Expiry.IsZero() {
		wait = da.Expiry.Sub(a.now())
	}

	pollCtx, cancel := context.WithCancelCause(octx)
	defer cancel(nil)
	timer := a.afterFunc(wait, func() { cancel(errDeviceExpired) })
	defer timer.Stop()

	tok, err := cfg.DeviceAccessToken(pollCtx, da)
	if err != nil {
		if errors.Is(context.Cause(pollCtx), errDeviceExpired) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &apperr.AuthError{Reason: "device authorization timed out", Err: errDeviceExpired}
		}
		return nil, &apperr.AuthError{Reason: "device token poll", Err: err}
	}
	return tok, nil
}

// Login runs the device flow, stores the token set and the user profile,
// then asks list views to refresh.
func (a *Authenticator) Login(ctx context.Context) (models.UserInfo, error) {
	a.mu.Lock()
	ui, err := a.loginLocked(ctx)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a.announce(ctx)
	return ui, nil
}

func (a *Authenticator) loginLocked(ctx context.Context) (models.UserInfo, error) {
	tok, err := a.login(ctx)
	if err != nil {
		return nil, err
	}
	ts := a.tokenSet(tok)
	ui, err := a.userInfoLocked(ctx, ts.AccessToken)
	if err != nil {
		a.logger.Warn("userinfo fetch failed", slog.String("error", err.Error()))
	}
	if err := a.store.SaveLogin(ts, ui); err != nil {
		return nil, err
	}
	a.logger.Info("logged in")
	return ui, nil
}

func (a *Authenticator) announce(ctx context.Context) {
	if a.bus != nil {
		a.bus.Publish(ctx, events.PostsRefresh, nil)
	}
}

func (a *Authenticator) userInfoLocked(ctx context.Context, accessToken string) (models.UserInfo, error) {
	p, err := a.providerLocked(ctx)
	if err != nil {
		return nil, err
	}
	if p.UserinfoEndpoint == "" {
		return nil, nil
	}
	var ui models.UserInfo
	if err := doJSON(ctx, a.http, http.MethodGet, p.UserinfoEndpoint, nil, accessToken, &ui); err != nil {
		return nil, fmt.Errorf("auth: userinfo: %w", err)
	}
	return ui, nil
}

// tokenSet converts an oauth2 token, reading the expiry from the access
// token's exp claim when the response carried none.
func (a *Authenticator) tokenSet(tok *oauth2.Token) models.TokenSet {
	ts := models.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if ts.ExpiresAt.IsZero() {
		ts.ExpiresAt = jwtExpiry(tok.AccessToken)
	}
	return ts
}

// jwtExpiry returns the exp claim of an unverified JWT, or the zero time.
func jwtExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func (a *Authenticator) refreshLocked(ctx context.Context, ts models.TokenSet) (models.TokenSet, error) {
	if ts.RefreshToken == "" {
		return models.TokenSet{}, errors.New("no refresh token")
	}
	cfg, _, err := a.oauthConfigLocked(ctx)
	if err != nil {
		return models.TokenSet{}, err
	}
	// A token carrying only the refresh token forces a refresh grant.
	src := cfg.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: ts.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.TokenSet{}, err
	}
	next := a.tokenSet(tok)
	if next.RefreshToken == "" {
		next.RefreshToken = ts.RefreshToken
	}
	return next, nil
}

// AccessToken returns a usable access token. Without stored credentials
// it runs the device flow; an expired token is refreshed, and a failed
// refresh resets the credentials and re-authenticates. After MaxAttempts
// cycles an *apperr.AuthError is returned.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	token, loggedIn, err := a.accessTokenLocked(ctx)
	a.mu.Unlock()
	if loggedIn {
		a.announce(ctx)
	}
	return token, err
}

func (a *Authenticator) accessTokenLocked(ctx context.Context) (token string, loggedIn bool, err error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		ts, ok, err := a.store.TokenSet()
		if err != nil {
			return "", loggedIn, err
		}
		if !ok {
			if _, err := a.loginLocked(ctx); err != nil {
				return "", loggedIn, err
			}
			loggedIn = true
			continue
		}
		if ts.Valid(a.now()) {
			return ts.AccessToken, loggedIn, nil
		}

		next, err := a.refreshLocked(ctx, ts)
		if err == nil {
			if err := a.store.SaveTokenSet(next); err != nil {
				return "", loggedIn, err
			}
			return next.AccessToken, loggedIn, nil
		}
		lastErr = err
		a.logger.Warn("token refresh failed, resetting credentials",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if err := a.store.ClearCredentials(); err != nil {
			return "", loggedIn, err
		}
	}
	return "", loggedIn, &apperr.AuthError{
		Reason: fmt.Sprintf("no valid token after %d attempts", a.cfg.MaxAttempts),
		Err:    lastErr,
	}
}

// Logout forgets the stored token set and profile.
func (a *Authenticator) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.ClearCredentials()
}

// WhoAmI returns the last-known profile, or nil when logged out.
func (a *Authenticator) WhoAmI() (models.UserInfo, error) {
	if _, ok, err := a.store.TokenSet(); err != nil || !ok {
		return nil, err
	}
	return a.store.UserInfo()
}
