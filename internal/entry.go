// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/postdesk/internal/auth"
	"github.com/starford/postdesk/internal/dashboard"
	"github.com/starford/postdesk/internal/events"
	"github.com/starford/postdesk/internal/gateway"
	"github.com/starford/postdesk/internal/mcpserver"
	"github.com/starford/postdesk/internal/metrics"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/session"
	"github.com/starford/postdesk/internal/sse"
	"github.com/starford/postdesk/internal/state"
	"github.com/starford/postdesk/internal/ui"
	"github.com/starford/postdesk/internal/vfs"
	"github.com/starford/postdesk/internal/video"
	"github.com/starford/postdesk/internal/watch"
)

// App holds every long-lived component. It is built once per process and
// passed to whatever needs it.
type App struct {
	Config   *Config
	Logger   *slog.Logger
	Printer  *ui.Printer
	Metrics  *metrics.Metrics
	Bus      *events.Bus
	State    *state.DB
	Store    *vfs.Store
	Gateway  *gateway.Client
	Auth     *auth.Authenticator
	Sessions *session.Controller
	Posts    *postservice.Service
	Videos   *video.Service
	Tracker  *video.Tracker

	version string
}

// New wires the application from its configuration.
func New(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		version: "dev",
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Logs go to stderr; stdout carries command output and MCP stdio.
	logger := slog.New(slog.NewJSONHandler(app.stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	printer := ui.NewPrinter(app.stdout, app.stderr)
	m := metrics.New()
	bus := events.New(logger)

	db, err := state.Open(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}

	store, err := vfs.New(cfg.Sandbox.Path, cfg.Sandbox.Scheme)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sandbox: %w", err)
	}

	hc := app.httpClient
	if hc == nil {
		hc = gateway.DefaultHTTPClient()
	}
	gw := gateway.New(cfg.Platform.BaseURL,
		gateway.WithHTTPClient(hc),
		gateway.WithBus(bus),
		gateway.WithMetrics(m),
		gateway.WithLogger(logger),
	)

	prompt := app.prompt
	if prompt == nil {
		prompt = devicePrompt(printer)
	}
	authn := auth.New(auth.Config{
		BaseURL:       cfg.Platform.BaseURL,
		ClientID:      cfg.Auth.ClientID,
		DeviceTimeout: cfg.Auth.DeviceTimeout,
		MaxAttempts:   cfg.Auth.MaxAttempts,
	}, db,
		auth.WithHTTPClient(hc),
		auth.WithLogger(logger),
		auth.WithPrompt(prompt),
		auth.WithBus(bus),
	)

	sessions := session.New(store, gw, authn, printer.Notifier(),
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithLockDir(cfg.State.LockDir()),
		session.WithRemoveOnClose(cfg.Sandbox.RemoveOnClose),
		session.WithExtension(cfg.Sandbox.Extension),
		session.WithScheme(cfg.Sandbox.Scheme),
	)

	posts := postservice.NewService(gw, authn, db, sessions, bus, logger)
	posts.Subscribe(bus)

	uploader, err := newUploader(ctx, cfg.Upload, gw, authn, hc)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init uploads: %w", err)
	}

	tracker := video.NewTracker(video.TrackerConfig{
		PollInterval:  cfg.Video.PollInterval,
		MaxPollErrors: cfg.Video.MaxPollErrors,
		MP4Base:       cfg.Video.MP4BaseURL,
		StreamURL:     cfg.Video.StreamURL,
	}, gw, authn, hc, logger)

	logger.Debug("Configuration loaded",
		slog.String("platform", cfg.Platform.BaseURL),
		slog.String("sandbox", store.Root()),
		slog.String("state", cfg.State.Path),
		slog.String("upload_backend", cfg.Upload.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Printer:  printer,
		Metrics:  m,
		Bus:      bus,
		State:    db,
		Store:    store,
		Gateway:  gw,
		Auth:     authn,
		Sessions: sessions,
		Posts:    posts,
		Videos:   video.NewService(gw, authn, uploader, m, logger),
		Tracker:  tracker,
		version:  app.version,
	}, nil
}

func newUploader(ctx context.Context, cfg UploadConfig, gw *gateway.Client, tokens video.TokenSource, hc *http.Client) (video.Uploader, error) {
	if cfg.Backend != UploadS3 {
		return video.NewSignedURLUploader(gw, tokens, hc), nil
	}
	s3cfg := video.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		PublicBaseURL:   cfg.S3.PublicBaseURL,
		PathStyle:       cfg.S3.PathStyle,
	}
	client, err := video.NewS3Client(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return video.NewS3Uploader(client, s3cfg.Bucket, s3cfg.PublicBaseURL)
}

func devicePrompt(p *ui.Printer) auth.Prompt {
	return func(verificationURI, userCode, completeURI string) {
		if completeURI != "" {
			p.Notice("Open %s to sign in", completeURI)
		}
		p.Notice("Or visit %s and enter the code %s", verificationURI, userCode)
	}
}

// Close releases sessions and the state database.
func (a *App) Close() error {
	a.Sessions.CloseAll()
	return a.State.Close()
}

// MCP returns the agent tool server over the app's services.
func (a *App) MCP() *mcpserver.Server {
	return mcpserver.New(a.Posts, videoTools{Service: a.Videos, Tracker: a.Tracker}, a.version)
}

type videoTools struct {
	*video.Service
	*video.Tracker
}

// Watcher turns editor saves under the sandbox into session saves.
func (a *App) Watcher() *watch.Watcher {
	return watch.New(a.Store.Root(), a.Config.Sandbox.Extension, a.Sessions, a.Logger, vfs.IsTemp)
}

// Router builds the dashboard HTTP handler. stream, if non-nil, serves
// GET /api/events.
func (a *App) Router(stream http.Handler) chi.Router {
	cfg := a.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.Logger))
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := a.State.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", a.Metrics.Handler())

	r.Mount("/api", dashboard.NewRouter(a.Posts, dashboard.Config{
		AuthEnabled: cfg.Dashboard.AuthEnabled(),
		Token:       cfg.Dashboard.Token,
		Events:      stream,
		Videos:      a.Tracker,
		Sandbox:     a.Store,
		Logger:      a.Logger,
	}))
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// Serve runs the dashboard, the live event stream and the sandbox watcher
// until ctx is cancelled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SSE broker fed by post events and sandbox changes.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	broker.Bridge(a.Bus)
	a.Store.OnDidChange(broker.PublishChanges)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           a.Router(broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Watcher().Run(gCtx, nil)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	// Sync the cache in the background; an expired login must not block
	// the dashboard from coming up.
	go a.Posts.Refresh(gCtx)

	err := g.Wait()
	a.Sessions.CloseAll()
	if err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Run builds the application and serves the dashboard.
func Run(ctx context.Context, opts ...Option) error {
	app, err := New(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Serve(ctx)
}
