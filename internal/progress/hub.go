// Package progress is the push side of the progress channel: per-job fanout
// of events to subscribers attached from now forward. The poll side is the
// job store's snapshot read; both are independent views over the same
// append-only event sequence.
package progress

import (
	"sync"

	"github.com/google/uuid"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

// subscriber buffer; a consumer that falls this far behind loses events,
// the poll snapshot remains complete.
const subscriberBuffer = 32

type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan domain.ProgressEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[uuid.UUID]map[chan domain.ProgressEvent]struct{}{}}
}

// Subscribe attaches to a job's event stream from this point forward. The
// channel closes when the job reaches a terminal stage or cancel is called.
func (h *Hub) Subscribe(jobID uuid.UUID) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = map[chan domain.ProgressEvent]struct{}{}
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[jobID]; ok {
				if _, live := set[ch]; live {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, jobID)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to all current subscribers of its job. Sends
// never block; a full subscriber simply misses the event. A terminal stage
// closes the job's subscriptions.
func (h *Hub) Publish(ev domain.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[ev.JobID]
	for ch := range set {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Stage.Terminal() && set != nil {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, ev.JobID)
	}
}
