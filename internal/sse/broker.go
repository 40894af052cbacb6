// Package sse implements a Server-Sent Events broker for live dashboard updates.
package sse

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/postdesk/internal/events"
	"github.com/starford/postdesk/internal/vfs"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DefaultKeepAlive is how often idle streams get a comment line so
// proxies and browsers keep them open.
const DefaultKeepAlive = 20 * time.Second

// retryMillis is the reconnect delay suggested to EventSource clients.
const retryMillis = 3000

var keepAliveFrame = []byte(": keepalive\n\n")

// Broker manages SSE client connections and broadcasts events.
//
// A single internal loop owns the client set and the sandbox throttle
// timestamp; public methods talk to it over channels.
type Broker struct {
	sandboxMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan []vfs.FileChange
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithKeepAlive changes the keep-alive interval; d <= 0 disables it.
func WithKeepAlive(d time.Duration) BrokerOption {
	return func(b *Broker) { b.keepAlive = d }
}

// NewBroker creates a broker. sandboxThrottle bounds how often the
// aggregate "sandbox.changed" event is sent.
func NewBroker(sandboxThrottle time.Duration, opts ...BrokerOption) *Broker {
	if sandboxThrottle <= 0 {
		sandboxThrottle = 2 * time.Second
	}

	b := &Broker{
		sandboxMin:    sandboxThrottle,
		keepAlive:     DefaultKeepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan []vfs.FileChange, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func frame(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", id, event.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSandbox time.Time

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}
	broadcast := func(event Event) {
		if raw, err := frame(event); err == nil {
			send(raw)
		}
	}

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-tick:
			send(keepAliveFrame)

		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case changes := <-b.changeCh:
			for _, c := range changes {
				broadcast(Event{
					Type: "document." + c.Type.String(),
					Data: map[string]string{"path": c.Path},
				})
			}
			now := time.Now()
			if now.Sub(lastSandbox) >= b.sandboxMin {
				lastSandbox = now
				broadcast(Event{Type: "sandbox.changed", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChanges forwards sandbox change batches; it matches the
// signature of vfs.Provider.OnDidChange listeners.
func (b *Broker) PublishChanges(changes []vfs.FileChange) {
	if b.closed.Load() || len(changes) == 0 {
		return
	}
	select {
	case b.changeCh <- changes:
	case <-b.stopped:
	}
}

// Bridge subscribes the broker to every post event on the bus. Bus event
// names map to SSE types by replacing ':' with '.', e.g. "post.updated".
func (b *Broker) Bridge(bus *events.Bus) {
	for _, ev := range []events.Event{events.PostCreated, events.PostUpdated, events.PostPublished, events.PostsRefresh} {
		bus.Subscribe(ev, func(_ context.Context, msg events.Message) error {
			var data any = map[string]string{}
			if msg.Post != nil {
				data = msg.Post
			}
			b.Publish(Event{Type: strings.ReplaceAll(string(msg.Event), ":", "."), Data: data})
			return nil
		})
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
