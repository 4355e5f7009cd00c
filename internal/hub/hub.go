package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the per-subscriber queue size.
const DefaultBuffer = 64

// Message is one published item.
type Message struct {
	Channel     string
	Payload     any
	PublishedAt time.Time
}

// Subscriber receives messages for one channel.
type Subscriber struct {
	channel string
	queue   chan Message
	dropped atomic.Int64
	once    sync.Once
}

// Channel returns the channel name the subscriber is registered on.
func (s *Subscriber) Channel() string {
	return s.channel
}

// C returns the delivery queue. It is closed by Unsubscribe or Close.
func (s *Subscriber) C() <-chan Message {
	return s.queue
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.queue) })
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Channels    int
	Subscribers int
	Published   int64
	Delivered   int64
	Dropped     int64
}

// Hub tracks subscribers per channel.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]map[*Subscriber]struct{}
	closed   bool

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// New creates a hub whose subscribers queue up to buffer messages.
func New(buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer:   buffer,
		logger:   logger,
		channels: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber on channel. Subscribing to a closed
// hub returns a subscriber whose queue is already closed.
func (h *Hub) Subscribe(channel string) *Subscriber {
	sub := &Subscriber{
		channel: channel,
		queue:   make(chan Message, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.close()
		return sub
	}

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.channels[channel] = subs
	}
	subs[sub] = struct{}{}

	h.logger.Debug("subscriber added", "channel", channel, "subscribers", len(subs))
	return sub
}

// Unsubscribe removes sub and closes its queue. It is safe to call more than
// once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	if subs, ok := h.channels[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.channels, sub.channel)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers payload to every subscriber of channel and returns the
// number of subscribers that accepted it.
func (h *Hub) Publish(channel string, payload any) int {
	msg := Message{
		Channel:     channel,
		Payload:     payload,
		PublishedAt: time.Now(),
	}

	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.channels[channel] {
		select {
		case sub.queue <- msg:
			delivered++
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
			h.logger.Warn("subscriber queue full, dropping message",
				"channel", channel,
				"dropped", sub.Dropped(),
			)
		}
	}

	h.delivered.Add(int64(delivered))
	return delivered
}

// Subscribers returns the number of subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.channels {
		total += len(subs)
	}

	return Stats{
		Channels:    len(h.channels),
		Subscribers: total,
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close unregisters every subscriber and closes their queues.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for channel, subs := range h.channels {
		for sub := range subs {
			sub.close()
		}
		delete(h.channels, channel)
	}
}
