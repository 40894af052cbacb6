package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/testutil"
)

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Platform.BaseURL = baseURL
	cfg.Sandbox.Path = filepath.Join(dir, "sandbox")
	cfg.State.Path = filepath.Join(dir, "state", "postdesk.db")
	return cfg
}

func testApp(t *testing.T, cfg *Config) (*App, *bytes.Buffer) {
	t.Helper()
	var out, diag bytes.Buffer
	app, err := New(context.Background(), WithConfig(cfg), WithOutput(&out, &diag), WithVersion("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	if err := app.State.SaveTokenSet(models.TokenSet{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	return app, &out
}

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRouterServesDashboard(t *testing.T) {
	p := testutil.NewPlatform(t, "tok")
	p.AddPost(models.Post{ID: "p1", Fields: models.PostFields{Title: "Hello", Slug: "hello", Body: "# Hi"}})
	app, _ := testApp(t, testConfig(t, p.URL()))

	srv := httptest.NewServer(app.Router(nil))
	defer srv.Close()

	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp, _ := get(t, srv.URL+path, nil); resp.StatusCode != http.StatusOK {
			t.Errorf("%s = %d", path, resp.StatusCode)
		}
	}

	resp, body := get(t, srv.URL+"/api/posts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("posts = %d %s", resp.StatusCode, body)
	}
	var list struct {
		Posts []postservice.PostListItem `json:"posts"`
		Total int                        `json:"total"`
	}
	if err := json.Unmarshal(body, &list); err != nil || list.Total != 1 || list.Posts[0].Slug != "hello" {
		t.Fatalf("posts body = %s", body)
	}

	resp, body = get(t, srv.URL+"/api/posts/hello/preview", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "<h1") {
		t.Errorf("preview = %d %s", resp.StatusCode, body)
	}

	_, body = get(t, srv.URL+"/metrics", nil)
	if !strings.Contains(string(body), "postdesk_requests_total") {
		t.Errorf("metrics missing gateway counter:\n%s", body)
	}
}

func TestRouterTokenMode(t *testing.T) {
	p := testutil.NewPlatform(t, "tok")
	cfg := testConfig(t, p.URL())
	cfg.Dashboard.Mode = AuthModeToken
	cfg.Dashboard.Token = "secret"
	app, _ := testApp(t, cfg)

	srv := httptest.NewServer(app.Router(nil))
	defer srv.Close()

	if resp, _ := get(t, srv.URL+"/api/posts", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", resp.StatusCode)
	}
	h := http.Header{"Authorization": []string{"Bearer secret"}}
	if resp, _ := get(t, srv.URL+"/api/posts", h); resp.StatusCode != http.StatusOK {
		t.Errorf("with token = %d", resp.StatusCode)
	}
	if resp, _ := get(t, srv.URL+"/health/live", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health must stay open, got %d", resp.StatusCode)
	}
}

func TestS3Backend(t *testing.T) {
	cfg := testConfig(t, "https://example.com")
	cfg.Upload.Backend = UploadS3
	cfg.Upload.S3 = S3Config{
		Endpoint:      "http://127.0.0.1:9000",
		Bucket:        "videos",
		PublicBaseURL: "https://cdn.example.com",
		PathStyle:     true,
	}
	app, _ := testApp(t, cfg)
	if app.Videos == nil || app.MCP() == nil {
		t.Fatal("video service not wired")
	}
}

func editWith(t *testing.T, script string) (*App, *testutil.Platform) {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell available")
	}
	p := testutil.NewPlatform(t, "tok")
	p.AddPost(models.Post{ID: "p1", Fields: models.PostFields{Title: "Draft", Slug: "draft", Body: "old"}})

	path := filepath.Join(t.TempDir(), "editor.sh")
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, p.URL())
	cfg.Editor.Command = sh + " " + path
	cfg.Sandbox.RemoveOnClose = true
	app, _ := testApp(t, cfg)
	return app, p
}

const editedDoc = "printf -- '---\\ntitle: Edited\\n---\\nnew body\\n' > \"$1\"\n"

func TestEditPostPushesSave(t *testing.T) {
	app, p := editWith(t, editedDoc)

	if err := app.EditPost(context.Background(), "draft", false); err != nil {
		t.Fatalf("EditPost: %v", err)
	}

	got := p.Posts()[0]
	if got.Fields.Title != "Edited" || !strings.Contains(got.Fields.Body, "new body") {
		t.Errorf("pushed post = %+v", got.Fields)
	}
	if n := len(app.Sessions.Sessions()); n != 0 {
		t.Errorf("%d sessions left open", n)
	}
	if _, err := os.Stat(filepath.Join(app.Store.Root(), "draft.mdx")); !os.IsNotExist(err) {
		t.Errorf("document not removed on close: %v", err)
	}
}

func TestEditPostSurvivesBackupRename(t *testing.T) {
	// vi-style write: move the original aside, pause, write the new file.
	app, p := editWith(t, "mv \"$1\" \"$1~\"\nsleep 0.3\n"+editedDoc)

	if err := app.EditPost(context.Background(), "draft", false); err != nil {
		t.Fatalf("EditPost: %v", err)
	}

	got := p.Posts()[0]
	if got.Fields.Title != "Edited" || !strings.Contains(got.Fields.Body, "new body") {
		t.Errorf("remote after edit = %+v; PUTs = %d", got.Fields, p.Count("PUT /api/posts"))
	}
	if n := len(app.Sessions.Sessions()); n != 0 {
		t.Errorf("%d sessions left open", n)
	}
}
