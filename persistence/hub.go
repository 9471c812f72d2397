package persistence

import (
	"context"
	"sync"
)

// feedBuffer is how many snapshots a slow subscriber may lag behind.
const feedBuffer = 16

// Hub fans change notifications out to in-process subscribers.
// A subscriber that falls behind loses its oldest pending snapshot; every
// snapshot is a full record, so the newest one is all it needs.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Change]struct{})}
}

// Subscribe registers a feed for id that closes when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, id string) <-chan Change {
	ch := make(chan Change, feedBuffer)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan Change]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[id]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, id)
			}
		}
	}()
	return ch
}

// Publish delivers c to every subscriber of c.ID without blocking.
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[c.ID] {
		msg := c
		if c.Session != nil {
			msg.Session = c.Session.Clone()
		}
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// Resync tells every subscriber of every game that it may have missed changes.
func (h *Hub) Resync() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Publish(Change{ID: id, Stale: true})
	}
}

// Subscribers returns how many feeds are open for id.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

// Close ends every feed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, id)
	}
}
