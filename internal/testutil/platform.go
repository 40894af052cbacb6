package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postdesk/internal/models"
)

// Platform is an in-memory fake of the content platform REST API and its
// OAuth endpoints.
type Platform struct {
	Server *httptest.Server

	mu       sync.Mutex
	token    string
	nextID   int
	posts    []models.Post
	tags     []models.Tag
	postTags map[string][]models.Tag
	videos   map[string]models.VideoResource
	uploads  []models.UploadRegistration
	objects  map[string][]byte
	fail     map[string]int
	requests []string

	// OAuth state.
	deviceApproved bool
	refreshFails   bool
	issued         int
	registered     int
	tokenTTL       time.Duration
}

// NewPlatform starts a fake platform. An empty token accepts any bearer.
func NewPlatform(t *testing.T, token string) *Platform {
	t.Helper()
	p := &Platform{
		token:    token,
		postTags: make(map[string][]models.Tag),
		videos:   make(map[string]models.VideoResource),
		objects:  make(map[string][]byte),
		fail:     make(map[string]int),
		tokenTTL: time.Hour,
	}

	r := chi.NewRouter()
	r.Use(p.record)
	r.Group(func(r chi.Router) {
		r.Use(p.bearer)
		r.Get("/api/posts", p.listPosts)
		r.Post("/api/posts", p.createPost)
		r.Put("/api/posts", p.updatePost)
		r.Get("/api/tags", p.listTags)
		r.Post("/api/tags/{postID}", p.addTag)
		r.Post("/api/uploads/signed-url", p.signedURL)
		r.Post("/api/uploads/new", p.newUpload)
		r.Get("/api/videos/{id}", p.getVideo)
	})
	r.Put("/bucket/*", p.putObject)
	r.Route("/oauth", func(r chi.Router) {
		r.Get("/.well-known/openid-configuration", p.discovery)
		r.Post("/register", p.register)
		r.Post("/device", p.device)
		r.Post("/token", p.tokenEndpoint)
		r.Get("/userinfo", p.userinfo)
	})

	p.Server = httptest.NewServer(r)
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the base URL of the fake.
func (p *Platform) URL() string { return p.Server.URL }

// FailNext makes the next request matching "METHOD /path" answer status.
func (p *Platform) FailNext(route string, status int) {
	p.mu.Lock()
	p.fail[route] = status
	p.mu.Unlock()
}

// Requests returns "METHOD /path" for every request served so far.
func (p *Platform) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requests...)
}

// Count returns how many requests matched route.
func (p *Platform) Count(route string) int {
	n := 0
	for _, r := range p.Requests() {
		if r == route {
			n++
		}
	}
	return n
}

// Posts returns a snapshot of the stored posts.
func (p *Platform) Posts() []models.Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Post(nil), p.posts...)
}

// AddPost stores a post directly.
func (p *Platform) AddPost(post models.Post) {
	p.mu.Lock()
	p.posts = append(p.posts, post)
	p.mu.Unlock()
}

// SetTags sets the available tags.
func (p *Platform) SetTags(tags []models.Tag) {
	p.mu.Lock()
	p.tags = tags
	p.mu.Unlock()
}

// PostTags returns the tags attached to postID.
func (p *Platform) PostTags(postID string) []models.Tag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Tag(nil), p.postTags[postID]...)
}

// SetVideo stores or replaces a video resource.
func (p *Platform) SetVideo(v models.VideoResource) {
	p.mu.Lock()
	p.videos[v.ID] = v
	p.mu.Unlock()
}

// Uploads returns the registered uploads.
func (p *Platform) Uploads() []models.UploadRegistration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.UploadRegistration(nil), p.uploads...)
}

// Object returns the bytes stored under name in the fake bucket.
func (p *Platform) Object(name string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.objects[name]
	return data, ok
}

// ApproveDevice lets pending device-code polls succeed.
func (p *Platform) ApproveDevice() {
	p.mu.Lock()
	p.deviceApproved = true
	p.mu.Unlock()
}

// FailRefresh makes refresh_token grants fail.
func (p *Platform) FailRefresh(fail bool) {
	p.mu.Lock()
	p.refreshFails = fail
	p.mu.Unlock()
}

// SetTokenTTL sets the lifetime of issued access tokens.
func (p *Platform) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	p.tokenTTL = d
	p.mu.Unlock()
}

// Registrations returns how many dynamic client registrations happened.
func (p *Platform) Registrations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered
}

func (p *Platform) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		p.mu.Lock()
		p.requests = append(p.requests, route)
		status, failing := p.fail[route]
		delete(p.fail, route)
		p.mu.Unlock()
		if failing {
			http.Error(w, "injected failure", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Platform) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		p.mu.Lock()
		want := p.token
		p.mu.Unlock()
		if want != "" && strings.TrimPrefix(auth, "Bearer ") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func slugify(title, id string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "-")
	return s + "~" + id
}

func (p *Platform) listPosts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.Posts())
}

func (p *Platform) createPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title required"})
		return
	}
	p.mu.Lock()
	p.nextID++
	id := fmt.Sprintf("post_%d", p.nextID)
	post := models.Post{ID: id, Fields: models.PostFields{
		Title: body.Title,
		Slug:  slugify(body.Title, id),
		State: models.PostStateDraft,
	}}
	p.posts = append(p.posts, post)
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, post)
}

func (p *Platform) updatePost(w http.ResponseWriter, r *http.Request) {
	var upd models.PostUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.posts {
		if p.posts[i].ID != upd.ID {
			continue
		}
		f := &p.posts[i].Fields
		f.Title = upd.Fields.Title
		f.Body = upd.Fields.Body
		if upd.Fields.Slug != "" {
			f.Slug = upd.Fields.Slug
		}
		if upd.Fields.State != "" {
			f.State = upd.Fields.State
		}
		writeJSON(w, http.StatusOK, p.posts[i])
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not found"})
}

func (p *Platform) listTags(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	tags := append([]models.Tag{}, p.tags...)
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, tags)
}

func (p *Platform) addTag(w http.ResponseWriter, r *http.Request) {
	var tag models.Tag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil || tag.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tag required"})
		return
	}
	postID := chi.URLParam(r, "postID")
	p.mu.Lock()
	p.postTags[postID] = append(p.postTags[postID], tag)
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (p *Platform) signedURL(w http.ResponseWriter, r *http.Request) {
	object := r.URL.Query().Get("objectName")
	if object == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "objectName required"})
		return
	}
	writeJSON(w, http.StatusOK, models.SignedURL{
		SignedURL:  p.Server.URL + "/bucket/" + object + "?sig=fake",
		PublicURL:  "https://cdn.example.com/" + object,
		Filename:   object,
		ObjectName: object,
	})
}

func (p *Platform) newUpload(w http.ResponseWriter, r *http.Request) {
	var reg models.UploadRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	p.mu.Lock()
	p.uploads = append(p.uploads, reg)
	p.nextID++
	id := fmt.Sprintf("video_%d", p.nextID)
	p.videos[id] = models.VideoResource{ID: id, State: models.VideoStateNew}
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (p *Platform) putObject(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.objects[chi.URLParam(r, "*")] = data
	p.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (p *Platform) getVideo(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	v, ok := p.videos[chi.URLParam(r, "id")]
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (p *Platform) discovery(w http.ResponseWriter, _ *http.Request) {
	base := p.Server.URL + "/oauth"
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                        base,
		"device_authorization_endpoint": base + "/device",
		"token_endpoint":                base + "/token",
		"userinfo_endpoint":             base + "/userinfo",
		"registration_endpoint":         base + "/register",
	})
}

func (p *Platform) register(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.registered++
	n := p.registered
	p.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"client_id": fmt.Sprintf("registered-%d", n)})
}

func (p *Platform) device(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":               "dev-code",
		"user_code":                 "ABCD-EFGH",
		"verification_uri":          p.Server.URL + "/activate",
		"verification_uri_complete": p.Server.URL + "/activate?code=ABCD-EFGH",
		"expires_in":                600,
		"interval":                  1,
	})
}

func (p *Platform) issue(w http.ResponseWriter) {
	p.issued++
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  fmt.Sprintf("access-%d", p.issued),
		"refresh_token": fmt.Sprintf("refresh-%d", p.issued),
		"token_type":    "Bearer",
		"expires_in":    int(p.tokenTTL.Seconds()),
	})
}

func (p *Platform) tokenEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch r.PostForm.Get("grant_type") {
	case "urn:ietf:params:oauth:grant-type:device_code":
		if !p.deviceApproved {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "authorization_pending"})
			return
		}
		p.issue(w)
	case "refresh_token":
		if p.refreshFails || r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		p.issue(w)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *Platform) userinfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sub": "user-1", "email": "writer@example.com", "name": "Writer"})
}
