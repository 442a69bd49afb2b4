// Package stream keeps the per-user registry of live event streams.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/ports"
)

const defaultHeartbeatInterval = 30 * time.Second

// ErrClosed is returned by writes on a closed subscription.
var ErrClosed = errors.New("stream: subscription closed")

// Sink is the transport end of a subscription. WriteFrame must deliver the
// frame or return an error; it is never called concurrently.
type Sink interface {
	WriteFrame(frame []byte) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func([]byte) error

// WriteFrame executes f(frame).
func (f SinkFunc) WriteFrame(frame []byte) error {
	return f(frame)
}

// Hub maps subscriber identities to their open stream. A new subscription for
// an identity replaces the previous one.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	interval  time.Duration
	logger    *slog.Logger
	clock     func() time.Time
	stop      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

var _ ports.Broadcaster = (*Hub)(nil)

// Option customizes hub construction.
type Option func(*Hub)

// WithHeartbeatInterval overrides the keep-alive cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithLogger injects a logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock allows tests to control heartbeat timestamps.
func WithClock(clock func() time.Time) Option {
	return func(h *Hub) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHub builds an idle hub; call Start to begin heartbeats.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:     map[string]*Subscription{},
		interval: defaultHeartbeatInterval,
		logger:   slog.Default(),
		clock:    time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Start launches the heartbeat loop. It is safe to call more than once.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		h.wg.Add(1)
		go h.heartbeat()
	})
}

// Stop halts heartbeats and closes every open subscription.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	h.wg.Wait()

	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for id, sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.markClosed()
	}
}

// Subscribe registers sink as the open stream for id, closing any previous one.
func (h *Hub) Subscribe(id string, sink Sink) *Subscription {
	sub := &Subscription{
		id:   id,
		sink: sink,
		hub:  h,
		done: make(chan struct{}),
	}

	h.mu.Lock()
	previous := h.subs[id]
	h.subs[id] = sub
	total := len(h.subs)
	h.mu.Unlock()

	if previous != nil {
		previous.markClosed()
	}
	h.logger.Debug("subscriber connected", "user", id, "subscribers", total)
	return sub
}

// Unsubscribe closes whatever stream is registered for id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.RLock()
	sub := h.subs[id]
	h.mu.RUnlock()
	if sub != nil {
		sub.Close()
	}
}

// Send writes event to id's stream. It reports false when nobody is listening
// or the write failed; a failed stream is deregistered.
func (h *Hub) Send(id string, event domain.Event) bool {
	h.mu.RLock()
	sub := h.subs[id]
	h.mu.RUnlock()
	if sub == nil {
		h.logger.Debug("no subscriber", "user", id, "type", event.Type)
		return false
	}

	if err := sub.Send(event); err != nil {
		h.logger.Debug("send failed", "user", id, "type", event.Type, "error", err)
		return false
	}
	return true
}

// BroadcastAll writes event to every open stream.
func (h *Hub) BroadcastAll(event domain.Event) {
	for _, sub := range h.snapshot() {
		if err := sub.Send(event); err != nil {
			h.logger.Debug("broadcast failed", "user", sub.id, "type", event.Type, "error", err)
		}
	}
}

// Len reports the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) snapshot() []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (h *Hub) heartbeat() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.BroadcastAll(domain.Event{Type: domain.EventHeartbeat, Timestamp: h.clock().UnixMilli()})
		case <-h.stop:
			return
		}
	}
}

// release removes sub from the registry if it is still the current entry.
func (h *Hub) release(sub *Subscription) {
	h.mu.Lock()
	if h.subs[sub.id] == sub {
		delete(h.subs, sub.id)
	}
	total := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("subscriber released", "user", sub.id, "subscribers", total)
}

// Subscription is one open stream. It moves from open to closed exactly once.
type Subscription struct {
	id   string
	sink Sink
	hub  *Hub

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// ID returns the subscriber identity.
func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once the subscription is closed for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Send encodes event as a frame and writes it to the sink. A write error
// closes the subscription.
func (s *Subscription) Send(event domain.Event) error {
	frame, err := EncodeFrame(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	writeErr := s.sink.WriteFrame(frame)
	s.mu.Unlock()

	if writeErr != nil {
		s.Close()
		return fmt.Errorf("write frame: %w", writeErr)
	}
	return nil
}

// Close marks the subscription closed and deregisters it. Every exit path
// (explicit close, disconnect, failed write, replacement, hub stop) ends here.
func (s *Subscription) Close() {
	if s.markClosed() {
		s.hub.release(s)
	}
}

func (s *Subscription) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.done)
	return true
}

// EncodeFrame renders event as a server-sent-event data frame.
func EncodeFrame(event domain.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
