package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/session"
	"github.com/starford/postdesk/internal/video"
)

const maxBody = 10 << 20

// VideoStatus reports the processing status of a video.
type VideoStatus interface {
	Snapshot(ctx context.Context, id string) (video.Status, *models.VideoResource, error)
}

// Sandbox resolves document paths to files on disk.
type Sandbox interface {
	Resolve(p string) (string, error)
}

// Handler holds dashboard route handlers.
type Handler struct {
	svc     *postservice.Service
	videos  VideoStatus
	sandbox Sandbox
	logger  *slog.Logger
}

// openedSession is an edit session plus the file an editor should open.
type openedSession struct {
	session.Info
	File string `json:"file,omitempty"`
}

// ListPosts handles GET /posts. With ?offline=1 the cached list is served.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	var (
		items []postservice.PostListItem
		err   error
	)
	if r.URL.Query().Get("offline") != "" {
		items, err = h.svc.Cached()
	} else {
		items, err = h.svc.List(r.Context())
	}
	if err != nil {
		writeError(w, h.logger, "list posts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": items,
		"total": len(items),
	})
}

// GetPost handles GET /posts/{id}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PreviewPost handles GET /posts/{id}/preview.
func (h *Handler) PreviewPost(w http.ResponseWriter, r *http.Request) {
	html, err := h.svc.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "preview post", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

// CreatePost handles POST /posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	p, err := h.svc.Create(r.Context(), req.Title)
	if err != nil {
		writeError(w, h.logger, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePost handles PUT /posts/{id}.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req struct {
		Title string  `json:"title"`
		Body  *string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("body is required"))
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req.Title, *req.Body)
	if err != nil {
		writeError(w, h.logger, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PublishPost handles POST /posts/{id}/publish.
func (h *Handler) PublishPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "publish post", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListTags handles GET /tags?q=.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, "list tags", err)
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// AddTag handles POST /posts/{id}/tags.
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req struct {
		TagID string `json:"tagId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TagID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("tagId is required"))
		return
	}
	if err := h.svc.AddTag(r.Context(), chi.URLParam(r, "id"), req.TagID); err != nil {
		writeError(w, h.logger, "add tag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /search?q=&limit= over the cached posts.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(q, limit)
	if err != nil {
		writeError(w, h.logger, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// Refresh handles POST /refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.svc.Refresh(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Sessions())
}

// OpenSession handles POST /posts/{id}/edit. Saves to the returned file are
// pushed by the server's sandbox watcher.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Edit(r.Context(), chi.URLParam(r, "id"), session.OpenOptions{})
	if err != nil {
		writeError(w, h.logger, "open session", err)
		return
	}
	out := openedSession{Info: s.Info()}
	if h.sandbox != nil {
		if abs, err := h.sandbox.Resolve(s.Path); err == nil {
			out.File = abs
		}
	}
	writeJSON(w, http.StatusCreated, out)
}

// CloseSession handles DELETE /sessions/{id}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CloseSession(chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VisibleSessions handles PUT /sessions/visible. Editors report the
// documents they still show; every other session is closed.
func (h *Handler) VisibleSessions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paths == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("paths is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ShowVisible(req.Paths))
}

// VideoStatus handles GET /videos/{id}.
func (h *Handler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	status, res, err := h.videos.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil && res == nil && status.View == video.ViewError {
		writeError(w, h.logger, "video status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"resource": res,
	})
}
