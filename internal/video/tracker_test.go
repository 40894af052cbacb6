package video

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/models"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

// scriptFetcher answers with a fixed sequence, repeating the last entry.
type scriptFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

type fetchStep struct {
	state string
	err   error
}

func (f *scriptFetcher) Video(_ context.Context, id, token string) (models.VideoResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != "tok" {
		return models.VideoResource{}, errors.New("bad token")
	}
	i := min(f.calls, len(f.steps)-1)
	f.calls++
	st := f.steps[i]
	if st.err != nil {
		return models.VideoResource{}, st.err
	}
	pb := "pb-" + id
	return models.VideoResource{ID: id, State: st.state, MuxPlaybackID: &pb}, nil
}

// mp4Server answers HEAD /<playback>/high.mp4 with 404 until ready is set.
func mp4Server(t *testing.T, ready *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || !strings.HasSuffix(r.URL.Path, "/high.mp4") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFollowReachesReady(t *testing.T) {
	var ready atomic.Bool
	mp4 := mp4Server(t, &ready)
	fetch := &scriptFetcher{steps: []fetchStep{
		{err: apperr.ErrNotFound},
		{state: models.VideoStateNew},
		{state: models.VideoStateProcessing},
		{state: models.VideoStateReady},
	}}
	tr := NewTracker(TrackerConfig{PollInterval: 5 * time.Millisecond, MP4Base: mp4.URL}, fetch, staticToken("tok"), mp4.Client(), nil)

	var seen []Status
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := tr.Follow(ctx, "v1", func(s Status) {
		seen = append(seen, s)
		if s.Message == MsgFinalEncode {
			ready.Store(true)
		}
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if final.View != ViewReady {
		t.Fatalf("final = %+v", final)
	}

	want := []string{MsgLoading, MsgProcessing, MsgStoring, MsgConverting}
	if len(seen) < len(want) {
		t.Fatalf("seen = %+v", seen)
	}
	for i, msg := range want {
		if seen[i].Message != msg {
			t.Errorf("seen[%d] = %+v, want message %q", i, seen[i], msg)
		}
	}
	var sawFinal bool
	for _, s := range seen {
		if s.Message == MsgFinalEncode {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Errorf("expected a final encoding status before ready: %+v", seen)
	}
}

func TestFollowErroredIsTerminal(t *testing.T) {
	fetch := &scriptFetcher{steps: []fetchStep{{state: models.VideoStateErrored}}}
	tr := NewTracker(TrackerConfig{PollInterval: time.Hour}, fetch, staticToken("tok"), nil, nil)
	final, err := tr.Follow(context.Background(), "v1", nil)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if final != (Status{View: ViewError, Message: MsgErrored}) {
		t.Errorf("final = %+v", final)
	}
}

func TestFollowGivesUpAfterErrors(t *testing.T) {
	boom := errors.New("boom")
	fetch := &scriptFetcher{steps: []fetchStep{{err: boom}}}
	tr := NewTracker(TrackerConfig{PollInterval: time.Millisecond, MaxPollErrors: 3}, fetch, staticToken("tok"), nil, nil)

	final, err := tr.Follow(context.Background(), "v1", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if final != (Status{View: ViewError, Message: MsgLoadError}) {
		t.Errorf("final = %+v", final)
	}
	if fetch.calls != 3 {
		t.Errorf("calls = %d, want 3", fetch.calls)
	}
}

func TestFollowStopsOnCancel(t *testing.T) {
	fetch := &scriptFetcher{steps: []fetchStep{{state: models.VideoStateProcessing}}}
	tr := NewTracker(TrackerConfig{PollInterval: time.Hour}, fetch, staticToken("tok"), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	final, err := tr.Follow(ctx, "v1", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if final.Message != MsgConverting {
		t.Errorf("final = %+v", final)
	}
}

func TestFollowAppliesStreamedResource(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	mp4 := mp4Server(t, &ready)

	upgrader := websocket.Upgrader{}
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"other","body":{"id":"v2","state":"ready"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"videoResource.updated","body":{"id":"v1","state":"ready","muxPlaybackId":"pb"}}`))
		// Hold the connection until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ws.Close)

	fetch := &scriptFetcher{steps: []fetchStep{{state: models.VideoStateNew}}}
	tr := NewTracker(TrackerConfig{
		PollInterval: time.Hour,
		MP4Base:      mp4.URL,
		StreamURL:    "ws" + strings.TrimPrefix(ws.URL, "http"),
	}, fetch, staticToken("tok"), mp4.Client(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := tr.Follow(ctx, "v1", nil)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if final.View != ViewReady {
		t.Errorf("final = %+v", final)
	}
	if fetch.calls != 1 {
		t.Errorf("fetch calls = %d, want only the initial poll", fetch.calls)
	}
}

func TestSnapshot(t *testing.T) {
	var ready atomic.Bool
	mp4 := mp4Server(t, &ready)
	fetch := &scriptFetcher{steps: []fetchStep{{state: models.VideoStateReady}}}
	tr := NewTracker(TrackerConfig{MP4Base: mp4.URL}, fetch, staticToken("tok"), mp4.Client(), nil)

	st, v, err := tr.Snapshot(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if v == nil || v.State != models.VideoStateReady {
		t.Fatalf("resource = %+v", v)
	}
	if st.Message != MsgFinalEncode {
		t.Errorf("status = %+v", st)
	}

	ready.Store(true)
	st, _, _ = tr.Snapshot(context.Background(), "v1")
	if st.View != ViewReady {
		t.Errorf("status = %+v", st)
	}
}

func TestMP4URL(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, nil, nil, nil, nil)
	if got := tr.MP4URL("abc"); got != "https://stream.mux.com/abc/high.mp4" {
		t.Errorf("MP4URL = %q", got)
	}
}
