package video

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/gateway"
	"github.com/starford/postdesk/internal/metrics"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/testutil"
)

func writeClip(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUniqueFilename(t *testing.T) {
	a := UniqueFilename("/tmp/My Clip (final).mp4")
	b := UniqueFilename("/tmp/My Clip (final).mp4")
	if a == b {
		t.Fatalf("names should differ: %q", a)
	}
	if !strings.HasSuffix(a, "-My-Clip-final-.mp4") && !strings.HasSuffix(a, "-My-Clip-final.mp4") {
		t.Errorf("name = %q", a)
	}
	if strings.ContainsAny(a, " ()/") {
		t.Errorf("unsafe characters left in %q", a)
	}
	if got := UniqueFilename("///"); !strings.HasSuffix(got, "-upload") {
		t.Errorf("empty base = %q", got)
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("clip.MP4"); got != "video/mp4" {
		t.Errorf("mp4 = %q", got)
	}
	if got := ContentType("clip.unknownext"); got != defaultContentType {
		t.Errorf("unknown = %q", got)
	}
}

func TestServiceUploadSignedURL(t *testing.T) {
	p := testutil.NewPlatform(t, "tok")
	gw := gateway.New(p.URL())
	m := metrics.New()
	up := NewSignedURLUploader(gw, staticToken("tok"), nil)
	svc := NewService(gw, staticToken("tok"), up, m, nil)

	data := bytes.Repeat([]byte("frame"), 1000)
	path := writeClip(t, "clip.mp4", data)

	var lastRead, lastTotal int64
	id, err := svc.Upload(context.Background(), "post_1", path, func(read, total int64) {
		lastRead, lastTotal = read, total
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id == "" {
		t.Error("expected a video id")
	}
	if lastRead != int64(len(data)) || lastTotal != int64(len(data)) {
		t.Errorf("progress = %d/%d", lastRead, lastTotal)
	}

	uploads := p.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d", len(uploads))
	}
	reg := uploads[0]
	if reg.Metadata.ParentResourceID != "post_1" {
		t.Errorf("parent = %q", reg.Metadata.ParentResourceID)
	}
	if reg.File.URL != "https://cdn.example.com/"+reg.File.Name {
		t.Errorf("file = %+v", reg.File)
	}
	stored, ok := p.Object(reg.File.Name)
	if !ok || !bytes.Equal(stored, data) {
		t.Errorf("stored object mismatch (ok=%v, %d bytes)", ok, len(stored))
	}
}

func TestSignedURLUploadFailure(t *testing.T) {
	p := testutil.NewPlatform(t, "tok")
	gw := gateway.New(p.URL())
	up := NewSignedURLUploader(gw, staticToken("tok"), nil)

	// The object name is not known in advance, so fail the signing call.
	p.FailNext("POST /api/uploads/signed-url", http.StatusForbidden)
	_, err := up.Upload(context.Background(), Object{Name: "a.mp4", ContentType: "video/mp4", Body: strings.NewReader("x")})
	if apperr.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}
}

type fakeSigner struct{ url string }

func (f fakeSigner) SignedUploadURL(_ context.Context, _, objectName, _ string) (models.SignedURL, error) {
	return models.SignedURL{SignedURL: f.url + "/" + objectName, PublicURL: "https://cdn/" + objectName}, nil
}

func TestSignedURLPutRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("content type = %q", got)
		}
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	t.Cleanup(srv.Close)

	up := NewSignedURLUploader(fakeSigner{url: srv.URL}, staticToken("tok"), srv.Client())
	_, err := up.Upload(context.Background(), Object{Name: "a.mp4", Body: strings.NewReader("x")})
	if apperr.StatusCode(err) != http.StatusRequestEntityTooLarge {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceUploadRequiresPost(t *testing.T) {
	svc := NewService(nil, staticToken("tok"), nil, nil, nil)
	if _, err := svc.Upload(context.Background(), "", "clip.mp4", nil); err == nil {
		t.Fatal("expected error for empty post id")
	}
	if _, err := svc.Upload(context.Background(), "post_1", filepath.Join(t.TempDir(), "missing.mp4"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestS3Uploader(t *testing.T) {
	var mu sync.Mutex
	got := map[string][]byte{}
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got[r.URL.Path] = body
		contentType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewS3Client(context.Background(), S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}
	up, err := NewS3Uploader(client, "videos", "https://media.example.com/")
	if err != nil {
		t.Fatal(err)
	}

	res, err := up.Upload(context.Background(), Object{
		Name:        "abc-clip.mp4",
		ContentType: "video/mp4",
		Size:        5,
		Body:        bytes.NewReader([]byte("hello")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.PublicURL != "https://media.example.com/abc-clip.mp4" || res.ObjectName != "abc-clip.mp4" {
		t.Errorf("result = %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if string(got["/videos/abc-clip.mp4"]) != "hello" {
		t.Errorf("stored = %v", got)
	}
	if contentType != "video/mp4" {
		t.Errorf("content type = %q", contentType)
	}
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	if _, err := NewS3Uploader(nil, "", ""); err == nil {
		t.Fatal("expected error")
	}
}
