// ABOUTME: In-memory fan-out hub pushing JSON payloads to all connected observers
// ABOUTME: Sends are fire-and-forget per observer; slow observers never block the rest

package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each observer.
	subscriberBufferSize = 64
)

// Envelope is the command-response wire shape pushed to observers. Chat turns
// are published bare; everything else rides in an envelope whose role names
// the command it answers.
type Envelope struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Hub fans JSON-serializable payloads out to every currently connected
// observer. There is no delivery guarantee beyond "currently connected
// observers receive it": payloads for full subscriber buffers are dropped.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan []byte
	logger      *slog.Logger
}

// New creates a hub. Pass nil logger for default.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]chan []byte),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers an observer. Returns a channel of serialized payloads
// and a subscription id for later unsubscription. The subscription is cleaned
// up automatically when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context) (<-chan []byte, string) {
	subID := uuid.New().String()
	ch := make(chan []byte, subscriberBufferSize)

	h.mu.Lock()
	h.subscribers[subID] = ch
	h.mu.Unlock()

	h.logger.Debug("observer subscribed", "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish serializes v once and delivers it to every observer. Non-blocking:
// the payload is dropped for observers whose channels are full.
func (h *Hub) Publish(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode broadcast payload", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]chan []byte, 0, len(h.subscribers))
	for _, ch := range h.subscribers {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- payload:
		default:
			h.logger.Debug("dropped payload for slow observer")
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subscribers[subID]
	if !ok {
		return
	}
	delete(h.subscribers, subID)
	close(ch)

	h.logger.Debug("observer unsubscribed", "sub_id", subID)
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts down the hub and closes all observer channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subID, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, subID)
	}

	h.logger.Debug("hub closed")
}
