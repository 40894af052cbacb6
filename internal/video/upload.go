package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/metrics"
	"github.com/starford/postdesk/internal/models"
)

const defaultContentType = "application/octet-stream"

// Object is one file to upload.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploaded is where an object ended up.
type Uploaded struct {
	PublicURL  string
	ObjectName string
}

// Uploader stores an object and returns its public location.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (Uploaded, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UniqueFilename prefixes a sanitized base of name with a random UUID.
func UniqueFilename(name string) string {
	base := unsafeName.ReplaceAllString(filepath.Base(name), "-")
	base = strings.Trim(base, "-.")
	if base == "" {
		base = "upload"
	}
	return uuid.New().String() + "-" + base
}

// videoTypes covers extensions the system MIME table often lacks.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// ContentType guesses a MIME type from the file extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultContentType
}

// progressReader counts bytes read and reports them.
type progressReader struct {
	r       io.Reader
	read    int64
	total   int64
	onRead  func(read, total int64)
	metrics *metrics.Metrics
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.metrics.UploadProgress(n)
		if p.onRead != nil {
			p.onRead(p.read, p.total)
		}
	}
	return n, err
}

// Seek lets retrying clients rewind; it fails for non-seekable sources.
func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("video: upload body is not seekable")
	}
	pos, err := s.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}

// SignedURLs issues pre-signed upload destinations.
type SignedURLs interface {
	SignedUploadURL(ctx context.Context, contentType, objectName, token string) (models.SignedURL, error)
}

// SignedURLUploader PUTs objects to a destination signed by the platform.
type SignedURLUploader struct {
	urls   SignedURLs
	tokens TokenSource
	http   *http.Client
}

// NewSignedURLUploader creates an uploader backed by platform-signed URLs.
func NewSignedURLUploader(urls SignedURLs, tokens TokenSource, hc *http.Client) *SignedURLUploader {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &SignedURLUploader{urls: urls, tokens: tokens, http: hc}
}

// Upload implements Uploader.
func (u *SignedURLUploader) Upload(ctx context.Context, obj Object) (Uploaded, error) {
	token, err := u.tokens.AccessToken(ctx)
	if err != nil {
		return Uploaded{}, err
	}
	su, err := u.urls.SignedUploadURL(ctx, obj.ContentType, obj.Name, token)
	if err != nil {
		return Uploaded{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, su.SignedURL, obj.Body)
	if err != nil {
		return Uploaded{}, fmt.Errorf("video: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", defaultContentType)
	if obj.Size > 0 {
		req.ContentLength = obj.Size
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return Uploaded{}, fmt.Errorf("video: upload %s: %w: %w", obj.Name, apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Uploaded{}, &apperr.HTTPError{Op: "upload object", StatusCode: resp.StatusCode, Status: resp.Status}
	}

	name := su.ObjectName
	if name == "" {
		name = obj.Name
	}
	return Uploaded{PublicURL: su.PublicURL, ObjectName: name}, nil
}

// Registrar records uploaded files on the platform.
type Registrar interface {
	RegisterUpload(ctx context.Context, reg models.UploadRegistration, token string) (models.UploadResult, error)
}

// Service uploads video files and attaches them to posts.
type Service struct {
	registrar Registrar
	tokens    TokenSource
	uploader  Uploader
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService creates an upload service.
func NewService(registrar Registrar, tokens TokenSource, uploader Uploader, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{registrar: registrar, tokens: tokens, uploader: uploader, metrics: m, logger: logger}
}

// Upload sends the file at path and registers it under postID. It
// returns the id of the new video resource when the platform reports one.
// onProgress may be nil.
func (s *Service) Upload(ctx context.Context, postID, path string, onProgress func(read, total int64)) (string, error) {
	if postID == "" {
		return "", errors.New("video: post id is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("video: open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("video: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("video: %s is a directory", path)
	}

	obj := Object{
		Name:        UniqueFilename(path),
		ContentType: ContentType(path),
		Size:        info.Size(),
		Body: &progressReader{
			r:       f,
			total:   info.Size(),
			onRead:  onProgress,
			metrics: s.metrics,
		},
	}
	up, err := s.uploader.Upload(ctx, obj)
	if err != nil {
		return "", err
	}
	s.logger.Info("video uploaded",
		slog.String("post", postID),
		slog.String("object", up.ObjectName),
		slog.Int64("bytes", info.Size()))

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	res, err := s.registrar.RegisterUpload(ctx, models.UploadRegistration{
		File:     models.UploadedFile{URL: up.PublicURL, Name: up.ObjectName},
		Metadata: models.UploadMetadata{ParentResourceID: postID},
	}, token)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}
