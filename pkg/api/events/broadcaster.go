// Package events fans memory and job events out to in-process subscribers.
package events

import (
	"sync"
	"time"
)

// Event types.
const (
	TypeChatFinalized   = "chat.finalized"
	TypeSummaryUpdated  = "summary.updated"
	TypeMemoryDistilled = "memory.distilled"
	TypeJobCompleted    = "job.completed"
)

// Event is the canonical event payload broadcast to websocket subscribers.
// UserID is empty for events that concern no single user.
type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	now         func() time.Time
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Broadcast sends event to every subscriber without blocking. Subscribers
// whose buffer is full miss the event.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// ChatFinalized emits chat.finalized.
func (b *Broadcaster) ChatFinalized(userID, chatID string, summarized bool) {
	b.Broadcast(Event{
		Type:   TypeChatFinalized,
		UserID: userID,
		Payload: map[string]any{
			"chat_id":    chatID,
			"summarized": summarized,
		},
	})
}

// SummaryUpdated emits summary.updated.
func (b *Broadcaster) SummaryUpdated(userID string, version int) {
	b.Broadcast(Event{
		Type:    TypeSummaryUpdated,
		UserID:  userID,
		Payload: map[string]any{"version": version},
	})
}

// MemoryDistilled emits memory.distilled with the entries created per tier.
func (b *Broadcaster) MemoryDistilled(userID string, tier1, tier2, tier3 int) {
	b.Broadcast(Event{
		Type:   TypeMemoryDistilled,
		UserID: userID,
		Payload: map[string]any{
			"tier1": tier1,
			"tier2": tier2,
			"tier3": tier3,
		},
	})
}

// JobCompleted emits job.completed.
func (b *Broadcaster) JobCompleted(job, trigger, status string, result any) {
	b.Broadcast(Event{
		Type: TypeJobCompleted,
		Payload: map[string]any{
			"job":     job,
			"trigger": trigger,
			"status":  status,
			"result":  result,
		},
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
