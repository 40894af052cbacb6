package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/postdesk/internal/events"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/vfs"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "post.updated", Data: map[string]string{"id": "p1"}})

	s := recv(t, ch)
	if !strings.HasPrefix(s, "id: ") {
		t.Errorf("missing event id in %q", s)
	}
	if !strings.Contains(s, "event: post.updated") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"id":"p1"`) {
		t.Errorf("missing data in %q", s)
	}
}

func TestBridgeForwardsBusEvents(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	bus := events.New(nil)
	b.Bridge(bus)
	bus.Publish(context.Background(), events.PostPublished, &models.Post{ID: "p9"})
	bus.Publish(context.Background(), events.PostsRefresh, nil)

	first := recv(t, ch)
	if !strings.Contains(first, "event: post.published") || !strings.Contains(first, `"id":"p9"`) {
		t.Errorf("first = %q", first)
	}
	if second := recv(t, ch); !strings.Contains(second, "event: posts.refresh") {
		t.Errorf("second = %q", second)
	}
}

func TestPublishChanges_SandboxThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishChanges([]vfs.FileChange{{Type: vfs.Created, Path: "/a.mdx"}})
	b.PublishChanges([]vfs.FileChange{{Type: vfs.Changed, Path: "/b.mdx"}})

	time.Sleep(50 * time.Millisecond)
	sandbox, docs := 0, 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			switch {
			case strings.Contains(s, "sandbox.changed"):
				sandbox++
			case strings.Contains(s, "event: document.created"), strings.Contains(s, "event: document.changed"):
				docs++
			}
		default:
			break loop
		}
	}

	if docs != 2 {
		t.Errorf("document events = %d, want 2", docs)
	}
	if sandbox != 1 {
		t.Errorf("sandbox events = %d, want 1 (throttled)", sandbox)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &lockedRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "post.created", Data: map[string]string{"id": "x"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if body := w.String(); !strings.Contains(body, "event: post.created") {
		t.Errorf("handler output missing event: %q", body)
	}
	if body := w.String(); !strings.HasPrefix(body, "retry: ") {
		t.Errorf("stream should open with a retry hint: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

// lockedRecorder guards the body against the concurrent reader in tests.
type lockedRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (l *lockedRecorder) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ResponseRecorder.Write(p)
}

func (l *lockedRecorder) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Body.String()
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: "post.updated", Data: map[string]string{"id": "x"}})
	b.PublishChanges([]vfs.FileChange{{Type: vfs.Deleted, Path: "/"}})
}

func TestKeepAlive(t *testing.T) {
	b := NewBroker(time.Second, WithKeepAlive(20*time.Millisecond))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	if got := recv(t, ch); got != ": keepalive\n\n" {
		t.Errorf("keepalive frame = %q", got)
	}
}
