// Package sse fans job snapshots out to subscribed event streams. Push is a
// convenience channel only; polling /status stays authoritative.
package sse

import (
	"sync"

	"github.com/google/uuid"

	"github.com/prooflab/cardproof-backend/internal/jobs"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
)

type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan jobs.View]struct{}
	log  *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subs: make(map[uuid.UUID]map[chan jobs.View]struct{}),
		log:  log.With("component", "SSEHub"),
	}
}

// Subscribe registers a stream for one job id. The returned cancel func must
// be called when the client goes away.
func (h *Hub) Subscribe(id uuid.UUID) (<-chan jobs.View, func()) {
	ch := make(chan jobs.View, 8)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan jobs.View]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[id]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, id)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// JobEvent implements jobs.Notifier. Slow subscribers drop events rather than
// stall a worker.
func (h *Hub) JobEvent(id uuid.UUID, v jobs.View) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[id] {
		select {
		case ch <- v:
		default:
		}
	}
}
