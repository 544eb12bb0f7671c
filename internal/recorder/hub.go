package recorder

import (
	"sync"

	"formfiller/internal/executor"
	"formfiller/internal/models"
)

type EventType string

const (
	EventAction   EventType = "action"
	EventStopped  EventType = "stopped"
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventClosed   EventType = "closed"
)

// Event is pushed to subscribers of a session.
type Event struct {
	Type      EventType          `json:"type"`
	SessionID string             `json:"session_id"`
	Action    *models.Action     `json:"action,omitempty"`
	Progress  *executor.Progress `json:"progress,omitempty"`
	Result    *executor.Result   `json:"result,omitempty"`
}

const subscriberBuffer = 64

// Hub fans session events out to subscribers. Slow subscribers lose events
// rather than block the page.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel of events for sessionID and a func that
// unsubscribes and closes it.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[sessionID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
		})
	}
}

func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers counts the subscribers of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
