package services

import (
	"sync"

	"khorcha/internal/core"
)

// Hub fans snapshots out to the subscribers of each user. Every snapshot it
// stamps carries a per-user sequence number one higher than the previous
// one, so subscribers can discard anything that arrives late.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	seq    map[string]uint64
	subs   map[string]map[uint64]func(core.Snapshot)
}

func NewHub() *Hub {
	return &Hub{
		seq:  map[string]uint64{},
		subs: map[string]map[uint64]func(core.Snapshot){},
	}
}

// Add registers fn for userID and returns its subscription id.
func (h *Hub) Add(userID string, fn func(core.Snapshot)) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	if h.subs[userID] == nil {
		h.subs[userID] = map[uint64]func(core.Snapshot){}
	}
	h.subs[userID][h.nextID] = fn
	return h.nextID
}

// Remove drops a subscription. Removing twice is harmless.
func (h *Hub) Remove(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[userID], id)
	if len(h.subs[userID]) == 0 {
		delete(h.subs, userID)
	}
}

// Stamp wraps records in a snapshot with the next sequence number of userID.
func (h *Hub) Stamp(userID string, records []core.Expense) core.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq[userID]++
	return core.Snapshot{UserID: userID, Seq: h.seq[userID], Records: records}
}

// Seq returns the last sequence number stamped for userID.
func (h *Hub) Seq(userID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq[userID]
}

// Publish stamps records and delivers the snapshot to every subscriber of
// userID. Callbacks run without the hub lock held.
func (h *Hub) Publish(userID string, records []core.Expense) core.Snapshot {
	snap := h.Stamp(userID, records)
	for _, fn := range h.subscribers(userID) {
		fn(snap)
	}
	return snap
}

// Subscribers returns the number of live subscriptions of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

func (h *Hub) subscribers(userID string) []func(core.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]func(core.Snapshot), 0, len(h.subs[userID]))
	for _, fn := range h.subs[userID] {
		out = append(out, fn)
	}
	return out
}
