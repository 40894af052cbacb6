package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/models"
)

// Defaults for Tracker.
const (
	DefaultPollInterval  = 5 * time.Second
	DefaultMaxPollErrors = 5
	DefaultMP4Base       = "https://stream.mux.com"

	streamReadTimeout = 2 * time.Minute
)

// Fetcher loads a video resource.
type Fetcher interface {
	Video(ctx context.Context, id, token string) (models.VideoResource, error)
}

// TokenSource yields a bearer token for platform calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	PollInterval  time.Duration
	MaxPollErrors int
	// MP4Base is the root of "<base>/<playbackId>/high.mp4".
	MP4Base string
	// StreamURL, when set, is a websocket endpoint pushing resource updates.
	StreamURL string
}

// Tracker follows a video until it is ready or has failed.
type Tracker struct {
	cfg    TrackerConfig
	fetch  Fetcher
	tokens TokenSource
	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewTracker creates a tracker.
func NewTracker(cfg TrackerConfig, fetch Fetcher, tokens TokenSource, hc *http.Client, logger *slog.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollErrors <= 0 {
		cfg.MaxPollErrors = DefaultMaxPollErrors
	}
	if cfg.MP4Base == "" {
		cfg.MP4Base = DefaultMP4Base
	}
	cfg.MP4Base = strings.TrimRight(cfg.MP4Base, "/")
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		cfg:    cfg,
		fetch:  fetch,
		tokens: tokens,
		http:   hc,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// MP4URL returns the downloadable rendition URL for a playback id.
func (t *Tracker) MP4URL(playbackID string) string {
	return fmt.Sprintf("%s/%s/high.mp4", t.cfg.MP4Base, playbackID)
}

// ProbeMP4 reports whether the high.mp4 rendition answers a HEAD request.
func (t *Tracker) ProbeMP4(ctx context.Context, playbackID string) bool {
	if playbackID == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.MP4URL(playbackID), nil)
	if err != nil {
		return false
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Snapshot fetches the video once and derives its status, probing the
// mp4 rendition for ready videos.
func (t *Tracker) Snapshot(ctx context.Context, id string) (Status, *models.VideoResource, error) {
	in := Input{NewResourceID: id}
	v, err := t.fetchOnce(ctx, id)
	switch {
	case err == nil:
		in.Resource = &v
		in.MP4 = t.mp4State(ctx, v)
	case errors.Is(err, apperr.ErrNotFound):
	default:
		in.FetchFailed = true
	}
	return Reduce(Status{}, in), in.Resource, err
}

func (t *Tracker) fetchOnce(ctx context.Context, id string) (models.VideoResource, error) {
	token, err := t.tokens.AccessToken(ctx)
	if err != nil {
		return models.VideoResource{}, err
	}
	return t.fetch.Video(ctx, id, token)
}

func (t *Tracker) mp4State(ctx context.Context, v models.VideoResource) MP4 {
	if v.State != models.VideoStateReady {
		return MP4Unknown
	}
	if t.ProbeMP4(ctx, v.PlaybackID()) {
		return MP4Ready
	}
	return MP4Pending
}

// Follow polls the video, and listens on the stream when configured,
// calling onStatus on every status change until a terminal status, too
// many consecutive fetch errors, or ctx cancellation.
func (t *Tracker) Follow(ctx context.Context, id string, onStatus func(Status)) (Status, error) {
	status := Reduce(Status{}, Input{Loading: true})
	emit := func(next Status) {
		if next != status {
			status = next
			if onStatus != nil {
				onStatus(status)
			}
		}
	}
	if onStatus != nil {
		onStatus(status)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pushed := make(chan models.VideoResource, 8)
	wake := make(chan struct{}, 1)
	if t.cfg.StreamURL != "" {
		go t.stream(ctx, id, pushed, wake)
	}

	in := Input{NewResourceID: id}
	errs := 0
	var lastErr error

	apply := func(v models.VideoResource) {
		in.Resource = &v
		in.FetchFailed = false
		if v.State == models.VideoStateReady {
			emit(Reduce(status, Input{Resource: &v, MP4: MP4Checking}))
		}
		in.MP4 = t.mp4State(ctx, v)
		emit(Reduce(status, in))
	}

	poll := func() {
		v, err := t.fetchOnce(ctx, id)
		switch {
		case err == nil:
			errs = 0
			apply(v)
		case errors.Is(err, apperr.ErrNotFound):
			errs = 0
			in.Resource = nil
			emit(Reduce(status, in))
		case ctx.Err() != nil:
		default:
			errs++
			lastErr = err
			t.logger.Warn("video poll failed",
				slog.String("video", id),
				slog.Int("errors", errs),
				slog.String("error", err.Error()))
			if errs >= t.cfg.MaxPollErrors {
				in.FetchFailed = true
				emit(Reduce(status, in))
			}
		}
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	poll()
	for {
		if in.FetchFailed && errs >= t.cfg.MaxPollErrors {
			return status, fmt.Errorf("video: gave up after %d failed polls: %w", errs, lastErr)
		}
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case v := <-pushed:
			apply(v)
		case <-wake:
			poll()
		case <-ticker.C:
			poll()
		}
	}
}

// streamMessage is a pushed update; Body may hold a full resource.
type streamMessage struct {
	Name string          `json:"name"`
	Body json.RawMessage `json:"body"`
}

// stream reads pushed updates. A resource for id is delivered on pushed;
// any other message mentioning id asks for an immediate poll. Stream
// failures only leave polling in charge.
func (t *Tracker) stream(ctx context.Context, id string, pushed chan<- models.VideoResource, wake chan<- struct{}) {
	ws, _, err := t.dialer.DialContext(ctx, t.cfg.StreamURL, nil)
	if err != nil {
		t.logger.Warn("video stream unavailable", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	for {
		_ = ws.SetReadDeadline(time.Now().Add(streamReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Debug("video stream closed", slog.String("error", err.Error()))
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		var msg streamMessage
		raw := message
		if err := json.Unmarshal(message, &msg); err == nil && len(msg.Body) > 0 {
			raw = msg.Body
		}
		var v models.VideoResource
		if err := json.Unmarshal(raw, &v); err == nil && v.ID == id && v.Validate() == nil {
			select {
			case pushed <- v:
			case <-ctx.Done():
				return
			}
			continue
		}
		if strings.Contains(string(message), id) {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
