// Package sse streams sync progress and candidate changes to HTTP clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	clientBuffer = 64
	// backlogSize must not exceed clientBuffer: a resume is written into the
	// client channel in one step.
	backlogSize = 32
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Events replayed to clients that connect without a Last-Event-ID.
var retained = map[string]bool{
	"sync.finished": true,
	"sync.failed":   true,
}

var fileKinds = map[string]bool{
	"created": true,
	"updated": true,
	"deleted": true,
}

type frame struct {
	id  uint64
	raw []byte
}

// hub is the broker state. It is only touched by the loop goroutine.
type hub struct {
	clients  map[chan []byte]struct{}
	seq      uint64
	backlog  []frame
	lastRun  *frame
	lastList time.Time
}

func (h *hub) broadcast(kind string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	h.seq++
	f := frame{id: h.seq, raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", h.seq, kind, payload)}

	h.backlog = append(h.backlog, f)
	if len(h.backlog) > backlogSize {
		h.backlog = h.backlog[len(h.backlog)-backlogSize:]
	}
	if retained[kind] {
		h.lastRun = &f
	}

	for ch := range h.clients {
		select {
		case ch <- f.raw:
		default:
			// A client that cannot keep up is dropped; it resumes from the
			// backlog when it reconnects with Last-Event-ID.
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// replay returns the frames a client resuming after lastID has missed. When
// lastID is unknown or too old, only the last run outcome is returned.
func (h *hub) replay(lastID uint64) []frame {
	if lastID > 0 && lastID <= h.seq && len(h.backlog) > 0 && h.backlog[0].id <= lastID+1 {
		var out []frame
		for _, f := range h.backlog {
			if f.id > lastID {
				out = append(out, f)
			}
		}
		return out
	}
	if h.lastRun != nil && h.lastRun.id != lastID {
		return []frame{*h.lastRun}
	}
	return nil
}

// Broker fans events out to SSE clients.
//
// A single loop goroutine owns the hub. Every public method is an operation
// queued to that loop, so operations apply in the order they were issued.
type Broker struct {
	listMin   time.Duration
	keepAlive time.Duration

	ops     chan func(*hub)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. candidates.updated is emitted at most once per
// throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		listMin:   throttle,
		keepAlive: 15 * time.Second,
		ops:       make(chan func(*hub), 256),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)
	h := &hub{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// exec queues op. It reports false once the broker is closed.
func (b *Broker) exec(op func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ops <- op:
		return true
	case <-b.stopped:
		return false
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. Frames after lastID still in the backlog are
// queued first; with lastID 0 the client gets the last run outcome, if any.
// The channel is closed on Unsubscribe, on Close, or when the client falls
// behind.
func (b *Broker) Subscribe(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	registered := make(chan struct{})
	ok := b.exec(func(h *hub) {
		h.clients[ch] = struct{}{}
		for _, f := range h.replay(lastID) {
			ch <- f.raw
		}
		close(registered)
	})
	if !ok {
		close(ch)
		return ch
	}
	select {
	case <-registered:
	case <-b.stopped:
		select {
		case <-registered:
			// Closed by the loop on stop.
		default:
			close(ch)
		}
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.exec(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.exec(func(h *hub) { resp <- len(h.clients) }) {
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
	b.exec(func(h *hub) { h.broadcast(event.Type, event.Data) })
}

// PublishSyncEvent publishes a sync run event (sync.started, file.published,
// sync.finished, sync.failed).
func (b *Broker) PublishSyncEvent(kind string, data any) {
	b.Publish(Event{Type: kind, Data: data})
}

// PublishFileEvent publishes a candidate change seen by the watcher and a
// throttled candidates.updated event. Unknown kinds are ignored.
func (b *Broker) PublishFileEvent(kind, path string) {
	if !fileKinds[kind] {
		return
	}
	b.exec(func(h *hub) {
		h.broadcast("file."+kind, map[string]string{"path": path})
		if now := time.Now(); now.Sub(h.lastList) >= b.listMin {
			h.lastList = now
			h.broadcast("candidates.updated", map[string]string{})
		}
	})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A reconnecting
// client's Last-Event-ID header resumes the stream from the backlog.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
