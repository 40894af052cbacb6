// Package postservice coordinates the platform gateway, the local post
// cache and edit sessions behind one API shared by the CLI, the dashboard
// and the MCP server.
package postservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/checksum"
	"github.com/starford/postdesk/internal/events"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/render"
	"github.com/starford/postdesk/internal/session"
	"github.com/starford/postdesk/internal/state"
)

const (
	minTitle = 2
	maxTitle = 90
)

// InputError reports a caller-supplied value the service refuses.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// Platform is the subset of the gateway the service needs.
type Platform interface {
	List(ctx context.Context, token string) ([]models.Post, error)
	Create(ctx context.Context, title, token string) (models.Post, error)
	Update(ctx context.Context, upd models.PostUpdate, token string) (models.Post, error)
	Publish(ctx context.Context, post models.Post, token string) (models.Post, error)
	Tags(ctx context.Context, token string) ([]models.Tag, error)
	AddTag(ctx context.Context, postID string, tag models.Tag, token string) error
}

// TokenSource yields a bearer token for platform calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// PostListItem is a lightweight item in a list response.
type PostListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	State     string    `json:"state,omitempty"`
	Published bool      `json:"published"`
	CachedAt  time.Time `json:"cachedAt,omitzero"`
}

// PostDetail is the full representation of a post.
type PostDetail struct {
	PostListItem
	Body     string `json:"body"`
	Checksum string `json:"checksum"`
}

// Service is the shared post API.
type Service struct {
	platform Platform
	tokens   TokenSource
	cache    *state.DB
	sessions *session.Controller
	bus      *events.Bus
	renderer *render.Renderer
	logger   *slog.Logger
}

// NewService creates a post service. sessions may be nil when editing is
// not offered.
func NewService(platform Platform, tokens TokenSource, cache *state.DB, sessions *session.Controller, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		platform: platform,
		tokens:   tokens,
		cache:    cache,
		sessions: sessions,
		bus:      bus,
		renderer: render.New(0),
		logger:   logger,
	}
}

// Subscribe keeps the cache current: post events upsert the changed post
// and posts:refresh reloads the whole list.
func (s *Service) Subscribe(bus *events.Bus) {
	upsert := func(_ context.Context, msg events.Message) error {
		if msg.Post == nil {
			return nil
		}
		return s.cache.UpsertPost(*msg.Post)
	}
	bus.Subscribe(events.PostCreated, upsert)
	bus.Subscribe(events.PostUpdated, upsert)
	bus.Subscribe(events.PostPublished, upsert)
	bus.Subscribe(events.PostsRefresh, func(ctx context.Context, _ events.Message) error {
		_, err := s.List(ctx)
		return err
	})
}

// List fetches every post from the platform and replaces the cache.
func (s *Service) List(ctx context.Context) ([]PostListItem, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := s.platform.List(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.cache.ReplacePosts(posts); err != nil {
		s.logger.Warn("post cache not updated", slog.String("error", err.Error()))
	}
	items := make([]PostListItem, len(posts))
	for i, p := range posts {
		items[i] = listItem(p, time.Time{})
	}
	return items, nil
}

// Cached returns the last known list without contacting the platform.
func (s *Service) Cached() ([]PostListItem, error) {
	rows, err := s.cache.Posts()
	if err != nil {
		return nil, err
	}
	items := make([]PostListItem, len(rows))
	for i, r := range rows {
		items[i] = listItem(r.Post, r.CachedAt)
	}
	return items, nil
}

// Search matches query against the cached posts. It works offline; run
// List first to search the current remote state.
func (s *Service) Search(query string, limit int) ([]state.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("postservice: search query is required")
	}
	hits, err := s.cache.Search(query, limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []state.SearchHit{}
	}
	return hits, nil
}

// Refresh asks every subscriber to reload the list.
func (s *Service) Refresh(ctx context.Context) {
	s.bus.Publish(ctx, events.PostsRefresh, nil)
}

// Post resolves idOrSlug from the cache, reloading the list once on a miss.
func (s *Service) Post(ctx context.Context, idOrSlug string) (models.Post, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return models.Post{}, fmt.Errorf("postservice: id or slug is required: %w", apperr.ErrNotFound)
	}
	cp, err := s.cache.Post(idOrSlug)
	if err == nil {
		return cp.Post, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return models.Post{}, err
	}
	if _, err := s.List(ctx); err != nil {
		return models.Post{}, err
	}
	cp, err = s.cache.Post(idOrSlug)
	if err != nil {
		return models.Post{}, fmt.Errorf("postservice: post %s: %w", idOrSlug, err)
	}
	return cp.Post, nil
}

// Detail returns the full representation of a post.
func (s *Service) Detail(ctx context.Context, idOrSlug string) (*PostDetail, error) {
	p, err := s.Post(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	return &PostDetail{
		PostListItem: listItem(p, time.Time{}),
		Body:         p.Fields.Body,
		Checksum:     checksum.Sum([]byte(p.Fields.Body)),
	}, nil
}

// Preview renders a post body as HTML.
func (s *Service) Preview(ctx context.Context, idOrSlug string) ([]byte, error) {
	p, err := s.Post(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	return s.renderer.HTML([]byte(p.Fields.Body)), nil
}

// Create creates a post with title.
func (s *Service) Create(ctx context.Context, title string) (models.Post, error) {
	title = strings.TrimSpace(title)
	if err := validation.Validate(title,
		validation.Required.Error("title is required"),
		validation.RuneLength(minTitle, maxTitle).Error("title must be between 2 and 90 characters"),
	); err != nil {
		return models.Post{}, &InputError{Field: "title", Err: err}
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return models.Post{}, err
	}
	return s.platform.Create(ctx, title, token)
}

// Update replaces the title and body of a post. An empty title keeps the
// current one. Only title and body are sent; slug and state stay whatever
// the platform currently holds.
func (s *Service) Update(ctx context.Context, idOrSlug, title, body string) (models.Post, error) {
	p, err := s.Post(ctx, idOrSlug)
	if err != nil {
		return models.Post{}, err
	}
	if title == "" {
		title = p.Fields.Title
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return models.Post{}, err
	}
	return s.platform.Update(ctx, models.PostUpdate{
		ID:     p.ID,
		Fields: models.UpdateFields{Title: title, Body: body},
	}, token)
}

// Publish marks a post as published.
func (s *Service) Publish(ctx context.Context, idOrSlug string) (models.Post, error) {
	p, err := s.Post(ctx, idOrSlug)
	if err != nil {
		return models.Post{}, err
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return models.Post{}, err
	}
	return s.platform.Publish(ctx, p, token)
}

// Tags lists tags, filtered like the tag picker: popular ones when query is
// empty, label matches otherwise.
func (s *Service) Tags(ctx context.Context, query string) ([]models.Tag, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.platform.Tags(ctx, token)
	if err != nil {
		return nil, err
	}
	return models.FilterTags(tags, query), nil
}

// AddTag attaches the tag with id tagID to a post.
func (s *Service) AddTag(ctx context.Context, idOrSlug, tagID string) error {
	p, err := s.Post(ctx, idOrSlug)
	if err != nil {
		return err
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	tags, err := s.platform.Tags(ctx, token)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if t.ID == tagID {
			return s.platform.AddTag(ctx, p.ID, t, token)
		}
	}
	return fmt.Errorf("postservice: tag %s: %w", tagID, apperr.ErrNotFound)
}

// Edit opens an edit session for a post and returns it.
func (s *Service) Edit(ctx context.Context, idOrSlug string, opts session.OpenOptions) (*session.Session, error) {
	if s.sessions == nil {
		return nil, errors.New("postservice: editing is not available")
	}
	p, err := s.Post(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	return s.sessions.Open(ctx, p, opts)
}

// CloseSession disposes the open session with the given id.
func (s *Service) CloseSession(id string) error {
	if s.sessions == nil || !s.sessions.CloseID(id) {
		return fmt.Errorf("postservice: session %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ShowVisible closes every session whose document is not among paths.
func (s *Service) ShowVisible(paths []string) []session.Info {
	if s.sessions == nil {
		return []session.Info{}
	}
	s.sessions.HandleVisibleEditors(paths)
	return s.sessions.Sessions()
}

// Sessions lists open edit sessions.
func (s *Service) Sessions() []session.Info {
	if s.sessions == nil {
		return []session.Info{}
	}
	return s.sessions.Sessions()
}

func listItem(p models.Post, cachedAt time.Time) PostListItem {
	return PostListItem{
		ID:        p.ID,
		Title:     p.Fields.Title,
		Slug:      p.Fields.Slug,
		State:     p.Fields.State,
		Published: p.Published(),
		CachedAt:  cachedAt,
	}
}
