// Package session ties remote posts to editable documents in the sandbox
// and pushes saved documents back to the platform.
package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/postdesk/internal/models"
)

// State is the lifecycle state of a session.
type State int

// Session states. A session moves Opening -> Editing, then between
// Editing and Saving for each save, and ends in Closed.
const (
	Opening State = iota
	Editing
	Saving
	Closed
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one post open as one virtual document.
type Session struct {
	ID       ulid.ULID
	Path     string // scheme-relative, e.g. "/my-post.mdx"
	URI      string
	OpenedAt time.Time

	closeOnSave bool
	pinned      bool

	// saveMu serialises saves of this document within the process.
	saveMu sync.Mutex

	mu       sync.Mutex
	post     models.Post
	state    State
	lastSum  string
	lastSave time.Time
	lastErr  error

	disposeOnce sync.Once
	done        chan struct{}
}

// Info is a point-in-time view of a session.
type Info struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	URI       string    `json:"uri"`
	State     string    `json:"state"`
	OpenedAt  time.Time `json:"openedAt"`
	LastSave  time.Time `json:"lastSave,omitzero"`
	LastError string    `json:"lastError,omitempty"`
}

// Post returns the last-known remote post.
func (s *Session) Post() models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.post
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session is disposed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:       s.ID.String(),
		PostID:   s.post.ID,
		Title:    s.post.Fields.Title,
		Path:     s.Path,
		URI:      s.URI,
		State:    s.state.String(),
		OpenedAt: s.OpenedAt,
		LastSave: s.lastSave,
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	return info
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// dispose marks the session closed. It returns true only on the first call.
func (s *Session) dispose() bool {
	first := false
	s.disposeOnce.Do(func() {
		first = true
		s.setState(Closed)
		close(s.done)
	})
	return first
}
