package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postdesk/internal/postservice"
)

// Config controls the dashboard API.
type Config struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events. With auth enabled it
	// also accepts the token as ?access_token= for EventSource clients.
	Events http.Handler
	// Videos, if non-nil, serves GET /videos/{id}.
	Videos VideoStatus
	// Sandbox, if non-nil, maps opened documents to files on disk.
	Sandbox Sandbox
	Logger *slog.Logger
}

// NewRouter creates a chi router with all dashboard API routes mounted.
func NewRouter(svc *postservice.Service, cfg Config) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{svc: svc, videos: cfg.Videos, sandbox: cfg.Sandbox, logger: cfg.Logger}

	r := chi.NewRouter()
	if cfg.Events != nil {
		r.With(requireToken(cfg.AuthEnabled, cfg.Token, bearerOrQuery)).
			Get("/events", cfg.Events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))
		h.routes(r, cfg.Videos != nil)
	})
	return r
}

func (h *Handler) routes(r chi.Router, videos bool) {
	r.Get("/posts", h.ListPosts)
	r.Post("/posts", h.CreatePost)
	r.Get("/posts/{id}", h.GetPost)
	r.Put("/posts/{id}", h.UpdatePost)
	r.Get("/posts/{id}/preview", h.PreviewPost)
	r.Post("/posts/{id}/publish", h.PublishPost)
	r.Post("/posts/{id}/tags", h.AddTag)
	r.Post("/posts/{id}/edit", h.OpenSession)

	r.Get("/tags", h.ListTags)
	r.Get("/search", h.Search)
	r.Post("/refresh", h.Refresh)
	r.Get("/sessions", h.ListSessions)
	r.Put("/sessions/visible", h.VisibleSessions)
	r.Delete("/sessions/{id}", h.CloseSession)

	if videos {
		r.Get("/videos/{id}", h.VideoStatus)
	}
}
