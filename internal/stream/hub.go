// Package stream notifies subscribers when the published snapshot changes.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"rsiScanner/internal/metrics"
	"rsiScanner/internal/ports"
)

// DefaultPollInterval is how often the watcher compares versions.
const DefaultPollInterval = time.Second

// Event tells a subscriber that a newer snapshot is available.
type Event struct {
	UpdateAvailable bool       `json:"updateAvailable"`
	LastUpdate      *time.Time `json:"lastUpdate"`
	Version         uint64     `json:"version"`
}

// SSE renders the event as one server-sent events frame.
func (e Event) SSE() []byte {
	payload, _ := json.Marshal(e)
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, '\n', '\n')
}

// Subscription is one independent listener with its own watermark.
type Subscription struct {
	ID       string
	events   chan Event
	lastSeen uint64
	hub      *Hub
	once     sync.Once
}

// Events delivers at most one pending event. The channel is closed when the
// subscription or the hub is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription from the hub. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub runs the single watcher that fans version changes out to subscribers.
type Hub struct {
	source  ports.SnapshotReader
	poll    time.Duration
	logger  ports.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewHub creates a hub reading versions from source.
func NewHub(source ports.SnapshotReader, pollInterval time.Duration, logger ports.Logger, m *metrics.Metrics) *Hub {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Hub{
		source:  source,
		poll:    pollInterval,
		logger:  logger,
		metrics: m,
		subs:    make(map[string]*Subscription),
	}
}

// Run ticks until ctx is done, then closes every subscription.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()
	h.logger.Info(ctx, "Change stream watcher started", map[string]interface{}{"interval": h.poll.String()})

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info(ctx, "Change stream watcher stopped")
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

// Subscribe registers a listener whose watermark starts at 0, so the first tick
// after any publish notifies it. After the hub stopped, the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		events: make(chan Event, 1),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.events) })
		return sub
	}
	h.subs[sub.ID] = sub
	h.metrics.SubscriberAdded()
	h.logger.Debug(context.Background(), "Stream subscriber added", map[string]interface{}{"id": sub.ID, "subscribers": len(h.subs)})
	return sub
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) tick() {
	snap := h.source.Snapshot()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if snap.Version <= sub.lastSeen {
			continue
		}
		sub.lastSeen = snap.Version
		select {
		case sub.events <- Event{UpdateAvailable: true, LastUpdate: snap.LastUpdate, Version: snap.Version}:
			h.metrics.EventSent()
		default:
			// An undelivered event already announces the change.
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		h.metrics.SubscriberRemoved()
	}
	sub.once.Do(func() { close(sub.events) })
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		h.metrics.SubscriberRemoved()
		sub.once.Do(func() { close(sub.events) })
	}
}
