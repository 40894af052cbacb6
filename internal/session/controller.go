package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/checksum"
	"github.com/starford/postdesk/internal/frontmatter"
	"github.com/starford/postdesk/internal/metrics"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/vfs"
)

// Updater pushes post changes to the platform.
type Updater interface {
	Update(ctx context.Context, upd models.PostUpdate, token string) (models.Post, error)
}

// TokenSource yields a bearer token for platform calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Notifier surfaces save outcomes to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string, err error)
}

// OpenOptions control a single Open.
type OpenOptions struct {
	// CloseOnSave disposes the session after its first successful save.
	CloseOnSave bool
	// Pinned keeps the session open when its document disappears from
	// outside. The caller that opened it must Close it.
	Pinned bool
}

// Controller owns every open session, keyed by document path.
type Controller struct {
	store         vfs.Provider
	updater       Updater
	tokens        TokenSource
	notify        Notifier
	logger        *slog.Logger
	metrics       *metrics.Metrics
	scheme        string
	ext           string
	lockDir       string
	removeOnClose bool

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithMetrics records save outcomes and open sessions.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithLockDir enables cross-process save locks stored in dir.
func WithLockDir(dir string) Option { return func(c *Controller) { c.lockDir = dir } }

// WithRemoveOnClose deletes the document when its session closes.
func WithRemoveOnClose(remove bool) Option { return func(c *Controller) { c.removeOnClose = remove } }

// WithExtension sets the document extension (default "mdx").
func WithExtension(ext string) Option {
	return func(c *Controller) { c.ext = strings.TrimPrefix(ext, ".") }
}

// WithScheme sets the URI scheme stripped from incoming paths (default "builder").
func WithScheme(scheme string) Option { return func(c *Controller) { c.scheme = scheme } }

// New creates a controller.
func New(store vfs.Provider, updater Updater, tokens TokenSource, notify Notifier, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		updater:  updater,
		tokens:   tokens,
		notify:   notify,
		logger:   slog.New(slog.DiscardHandler),
		scheme:   "builder",
		ext:      "mdx",
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extension returns the document extension without the dot.
func (c *Controller) Extension() string { return c.ext }

// PathFor returns the document path a post opens at.
func (c *Controller) PathFor(p models.Post) string {
	name := p.Fields.Slug
	if name == "" {
		name = p.ID
	}
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
	return "/" + name + "." + c.ext
}

// key normalises URIs and relative paths to "/name" form.
func (c *Controller) key(p string) string {
	p = strings.TrimPrefix(p, c.scheme+":")
	return "/" + strings.TrimLeft(filepath.ToSlash(p), "/")
}

// Open writes post into the sandbox and starts an editing session for it.
// An existing session on the same path is closed first.
func (c *Controller) Open(ctx context.Context, post models.Post, opts OpenOptions) (*Session, error) {
	path := c.PathFor(post)

	c.mu.Lock()
	prev := c.sessions[path]
	delete(c.sessions, path)
	c.mu.Unlock()
	if prev != nil {
		c.dispose(prev, false)
	}

	s := &Session{
		ID:          ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader),
		Path:        path,
		URI:         c.store.URI(path),
		OpenedAt:    time.Now(),
		closeOnSave: opts.CloseOnSave,
		pinned:      opts.Pinned,
		post:        post,
		state:       Opening,
		done:        make(chan struct{}),
	}

	content, err := frontmatter.Render(post.Fields.Title, post.Fields.Body)
	if err != nil {
		s.dispose()
		return nil, fmt.Errorf("session: open %s: %w", post.ID, err)
	}
	if err := c.store.WriteFile(path, content, vfs.WriteOptions{Create: true, Overwrite: true}); err != nil {
		s.dispose()
		return nil, fmt.Errorf("session: open %s: %w", post.ID, err)
	}
	s.lastSum = checksum.Sum(content)
	s.setState(Editing)

	c.mu.Lock()
	c.sessions[path] = s
	c.mu.Unlock()
	c.metrics.SessionOpened(1)

	c.logger.Info("session opened",
		slog.String("session", s.ID.String()),
		slog.String("post", post.ID),
		slog.String("path", path))
	return s, nil
}

// Get returns the open session for path, if any.
func (c *Controller) Get(path string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[c.key(path)]
	return s, ok
}

// Sessions returns a snapshot of all open sessions ordered by path.
func (c *Controller) Sessions() []Info {
	c.mu.Lock()
	out := make([]Info, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Info())
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// HandleSave reacts to a save of path. Only the session owning exactly that
// path reacts; other paths are ignored. Unchanged content is not re-sent.
// A failed update is reported and leaves the local document untouched.
func (c *Controller) HandleSave(ctx context.Context, path string) error {
	s, ok := c.Get(path)
	if !ok {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.State() == Closed {
		return nil
	}

	unlock, err := c.lockPath(s.Path)
	if err != nil {
		return err
	}
	defer unlock()

	saved, err := c.save(ctx, s)
	if err != nil {
		return err
	}
	if saved && s.closeOnSave {
		c.Close(s.Path)
	}
	return nil
}

func (c *Controller) save(ctx context.Context, s *Session) (bool, error) {
	data, err := c.store.ReadFile(s.Path)
	if err != nil {
		return false, fmt.Errorf("session: read %s: %w", s.Path, err)
	}
	sum := checksum.Sum(data)

	s.mu.Lock()
	unchanged := sum == s.lastSum
	prior := s.post
	s.mu.Unlock()
	if unchanged {
		c.metrics.SessionSaved("skipped")
		return false, nil
	}

	s.setState(Saving)
	defer func() {
		s.mu.Lock()
		if s.state == Saving {
			s.state = Editing
		}
		s.mu.Unlock()
	}()

	doc := frontmatter.Parse(data)
	upd := models.PostUpdate{
		ID: prior.ID,
		Fields: models.UpdateFields{
			Title: doc.Title(prior.Fields.Title),
			Body:  doc.Body,
		},
	}

	updated, err := c.push(ctx, upd)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		c.metrics.SessionSaved("error")
		c.logger.Error("save failed",
			slog.String("session", s.ID.String()),
			slog.String("post", prior.ID),
			slog.String("error", err.Error()))
		c.notify.Error(fmt.Sprintf("Saving %q failed; your local copy is kept", upd.Fields.Title), err)
		return false, err
	}

	s.mu.Lock()
	s.post = updated
	s.lastSum = sum
	s.lastSave = time.Now()
	s.lastErr = nil
	s.mu.Unlock()
	c.metrics.SessionSaved("ok")
	c.logger.Info("post saved",
		slog.String("session", s.ID.String()),
		slog.String("post", updated.ID))
	c.notify.Info(fmt.Sprintf("Saved %q", updated.Fields.Title))
	return true, nil
}

func (c *Controller) push(ctx context.Context, upd models.PostUpdate) (models.Post, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return models.Post{}, err
	}
	return c.updater.Update(ctx, upd, token)
}

// lockPath takes the cross-process lock for a document path.
func (c *Controller) lockPath(path string) (func(), error) {
	if c.lockDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(c.lockDir, 0o700); err != nil {
		return nil, fmt.Errorf("session: lock dir: %w", err)
	}
	name := checksum.Short(path) + ".lock"
	fl := flock.New(filepath.Join(c.lockDir, name))
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("session: lock %s: %w", path, err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// HandleVisibleEditors closes every session whose document is not among
// the visible paths.
func (c *Controller) HandleVisibleEditors(visible []string) {
	keep := make(map[string]struct{}, len(visible))
	for _, p := range visible {
		keep[c.key(p)] = struct{}{}
	}
	c.mu.Lock()
	var gone []string
	for path := range c.sessions {
		if _, ok := keep[path]; !ok {
			gone = append(gone, path)
		}
	}
	c.mu.Unlock()
	for _, path := range gone {
		c.Close(path)
	}
}

// HandleDeleted disposes the session of a document removed from outside.
// Pinned sessions survive; their next save reads whatever is on disk then.
func (c *Controller) HandleDeleted(path string) {
	key := c.key(path)
	c.mu.Lock()
	s := c.sessions[key]
	if s == nil || s.pinned {
		c.mu.Unlock()
		if s != nil {
			c.logger.Debug("pinned document removed", slog.String("path", key))
		}
		return
	}
	delete(c.sessions, key)
	c.mu.Unlock()
	c.dispose(s, false)
}

// CloseID disposes the session with the given id. It reports whether one
// was open.
func (c *Controller) CloseID(id string) bool {
	c.mu.Lock()
	var path string
	for p, s := range c.sessions {
		if s.ID.String() == id {
			path = p
			break
		}
	}
	c.mu.Unlock()
	if path == "" {
		return false
	}
	return c.Close(path)
}

// Close disposes the session on path. It reports whether one was open.
func (c *Controller) Close(path string) bool {
	key := c.key(path)
	c.mu.Lock()
	s := c.sessions[key]
	if s != nil {
		delete(c.sessions, key)
	}
	c.mu.Unlock()
	if s == nil {
		return false
	}
	c.dispose(s, c.removeOnClose)
	return true
}

// CloseAll disposes every open session.
func (c *Controller) CloseAll() {
	c.mu.Lock()
	all := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		all = append(all, s)
	}
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()
	for _, s := range all {
		c.dispose(s, c.removeOnClose)
	}
}

func (c *Controller) dispose(s *Session, remove bool) {
	if !s.dispose() {
		return
	}
	c.metrics.SessionOpened(-1)
	if remove {
		if err := c.store.Delete(s.Path, vfs.DeleteOptions{}); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			c.logger.Warn("remove closed document failed",
				slog.String("path", s.Path),
				slog.String("error", err.Error()))
		}
	}
	c.logger.Info("session closed",
		slog.String("session", s.ID.String()),
		slog.String("path", s.Path))
}
