package events

import (
	"sync"

	"stakegov/core/types"
)

// Hub fans emitted events out to subscribers. Delivery never blocks the
// emitter: a subscriber whose buffer is full misses the event and the drop is
// counted. Every rendered event is stamped with the next sequence number.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan *types.Event
	nextID  uint64
	seq     uint64
	buffer  int
	dropped uint64
}

// NewHub constructs a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[uint64]chan *types.Event), buffer: buffer}
}

// Emit implements the Emitter interface.
func (h *Hub) Emit(evt Event) {
	if h == nil || evt == nil {
		return
	}
	renderable, ok := evt.(Renderable)
	if !ok {
		return
	}
	rendered := renderable.Event()
	if rendered == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	rendered.Sequence = h.seq
	for _, ch := range h.subs {
		select {
		case ch <- rendered:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function closes
// the channel and must be called once the subscriber is done.
func (h *Hub) Subscribe() (<-chan *types.Event, func()) {
	ch := make(chan *types.Event, h.buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
