// Package gateway talks to the remote content platform REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/events"
	"github.com/starford/postdesk/internal/metrics"
	"github.com/starford/postdesk/internal/models"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second

	// maxErrorBody caps how much of a failed response is kept for logs.
	maxErrorBody = 512
)

// DefaultHTTPClient returns a client with connect and TLS timeouts set.
func DefaultHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: defaultConnectTimeout}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: defaultTLSTimeout,
		},
		Timeout: defaultHTTPTimeout,
	}
}

// Client is the platform API client. Successful mutations are announced on
// the bus so list views can refresh without knowing about the client.
type Client struct {
	baseURL string
	http    *http.Client
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBus sets the bus that receives post events.
func WithBus(b *events.Bus) Option {
	return func(c *Client) { c.bus = b }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the platform at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    DefaultHTTPClient(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the platform root URL.
func (c *Client) BaseURL() string { return c.baseURL }

// List returns every post visible to the token holder.
func (c *Client) List(ctx context.Context, token string) ([]models.Post, error) {
	const op = "list posts"
	body, err := c.do(ctx, op, http.MethodGet, "/api/posts", nil, token)
	if err != nil {
		return nil, err
	}
	posts, err := models.DecodePosts(body)
	if err != nil {
		return nil, &apperr.ValidationError{Op: op, Err: err}
	}
	return posts, nil
}

// Create creates a draft post with the given title.
func (c *Client) Create(ctx context.Context, title, token string) (models.Post, error) {
	p, err := c.sendPost(ctx, "create post", http.MethodPost, map[string]string{"title": title}, token)
	if err != nil {
		return models.Post{}, err
	}
	c.publish(ctx, events.PostCreated, p)
	return p, nil
}

// Update replaces the title and body of a post.
func (c *Client) Update(ctx context.Context, upd models.PostUpdate, token string) (models.Post, error) {
	if upd.ID == "" {
		return models.Post{}, fmt.Errorf("gateway: update post: missing id")
	}
	p, err := c.sendPost(ctx, "update post", http.MethodPut, upd, token)
	if err != nil {
		return models.Post{}, err
	}
	c.publish(ctx, events.PostUpdated, p)
	return p, nil
}

// Publish sends the post's current fields with the published marker.
func (c *Client) Publish(ctx context.Context, post models.Post, token string) (models.Post, error) {
	upd := models.PostUpdate{
		ID: post.ID,
		Fields: models.UpdateFields{
			Title: post.Fields.Title,
			Body:  post.Fields.Body,
			Slug:  post.Fields.Slug,
			State: models.PostStatePublished,
		},
	}
	p, err := c.sendPost(ctx, "publish post", http.MethodPut, upd, token)
	if err != nil {
		return models.Post{}, err
	}
	c.publish(ctx, events.PostPublished, p)
	return p, nil
}

func (c *Client) sendPost(ctx context.Context, op, method string, payload any, token string) (models.Post, error) {
	body, err := c.do(ctx, op, method, "/api/posts", payload, token)
	if err != nil {
		return models.Post{}, err
	}
	p, err := models.DecodePost(body)
	if err != nil {
		return models.Post{}, &apperr.ValidationError{Op: op, Err: err}
	}
	return p, nil
}

func (c *Client) publish(ctx context.Context, ev events.Event, p models.Post) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, ev, &p)
}

// Tags returns every tag known to the platform.
func (c *Client) Tags(ctx context.Context, token string) ([]models.Tag, error) {
	const op = "list tags"
	body, err := c.do(ctx, op, http.MethodGet, "/api/tags", nil, token)
	if err != nil {
		return nil, err
	}
	var tags []models.Tag
	if err := decodeJSON(body, &tags); err != nil {
		return nil, &apperr.ValidationError{Op: op, Err: err}
	}
	for i := range tags {
		if err := tags[i].Validate(); err != nil {
			return nil, &apperr.ValidationError{Op: op, Err: fmt.Errorf("tag %d: %w", i, err)}
		}
	}
	return tags, nil
}

// AddTag attaches tag to the post.
func (c *Client) AddTag(ctx context.Context, postID string, tag models.Tag, token string) error {
	_, err := c.do(ctx, "add tag", http.MethodPost, "/api/tags/"+url.PathEscape(postID), tag, token)
	return err
}

// SignedUploadURL asks the platform for a pre-signed upload destination.
func (c *Client) SignedUploadURL(ctx context.Context, contentType, objectName, token string) (models.SignedURL, error) {
	const op = "signed upload url"
	q := url.Values{}
	q.Set("contentType", contentType)
	q.Set("objectName", objectName)
	payload := map[string]string{"contentType": contentType, "objectName": objectName}

	body, err := c.do(ctx, op, http.MethodPost, "/api/uploads/signed-url?"+q.Encode(), payload, token)
	if err != nil {
		return models.SignedURL{}, err
	}
	var su models.SignedURL
	if err := decodeJSON(body, &su); err != nil {
		return models.SignedURL{}, &apperr.ValidationError{Op: op, Err: err}
	}
	if err := su.Validate(); err != nil {
		return models.SignedURL{}, &apperr.ValidationError{Op: op, Err: err}
	}
	return su, nil
}

// RegisterUpload records an uploaded file against its parent post. The
// platform may answer with the id of the new video resource; an empty or
// non-JSON answer yields an empty result.
func (c *Client) RegisterUpload(ctx context.Context, reg models.UploadRegistration, token string) (models.UploadResult, error) {
	body, err := c.do(ctx, "register upload", http.MethodPost, "/api/uploads/new", reg, token)
	if err != nil {
		return models.UploadResult{}, err
	}
	var res models.UploadResult
	if err := json.Unmarshal(body, &res); err != nil {
		c.logger.Debug("upload registration answer not understood", slog.String("error", err.Error()))
		return models.UploadResult{}, nil
	}
	return res, nil
}

// Video fetches a video resource. A JSON null body yields ErrNotFound.
func (c *Client) Video(ctx context.Context, id, token string) (models.VideoResource, error) {
	const op = "get video"
	body, err := c.do(ctx, op, http.MethodGet, "/api/videos/"+url.PathEscape(id), nil, token)
	if err != nil {
		return models.VideoResource{}, err
	}
	if string(bytes.TrimSpace(body)) == "null" {
		return models.VideoResource{}, fmt.Errorf("gateway: %s %s: %w", op, id, apperr.ErrNotFound)
	}
	var v models.VideoResource
	if err := decodeJSON(body, &v); err != nil {
		return models.VideoResource{}, &apperr.ValidationError{Op: op, Err: err}
	}
	if err := v.Validate(); err != nil {
		return models.VideoResource{}, &apperr.ValidationError{Op: op, Err: err}
	}
	return v, nil
}

// do performs one JSON request and returns the raw response body of a
// 2xx answer. Anything else is an *apperr.HTTPError.
func (c *Client) do(ctx context.Context, op, method, path string, payload any, token string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gateway: %s: encode: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(op, 0, time.Since(start))
		return nil, fmt.Errorf("gateway: %s: %w: %w", op, apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest(op, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("platform request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("body", msg))
		return nil, &apperr.HTTPError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("gateway: %s: read body: %w", op, err)
	}
	return body, nil
}

func decodeJSON(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(body, v)
}
