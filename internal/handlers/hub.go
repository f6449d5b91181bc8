package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Event is one view change pushed to connected pages
type Event struct {
	Type     string      `json:"type"`
	Progress *float64    `json:"progress,omitempty"`
	Label    string      `json:"label,omitempty"`
	Meta     *string     `json:"meta,omitempty"`
	Enabled  *bool       `json:"enabled,omitempty"`
	URL      *string     `json:"url,omitempty"`
	Message  string      `json:"message,omitempty"`
	State    interface{} `json:"state,omitempty"`
}

// Event types
const (
	EventProgress   = "progress"
	EventLabel      = "label"
	EventFile       = "file"
	EventClearInput = "clear_input"
	EventTrigger    = "trigger"
	EventResult     = "result"
	EventNotify     = "notify"
	EventSnapshot   = "snapshot"
)

type subscriber struct {
	send chan []byte
}

// Hub fans controller view updates out to websocket subscribers.
// It implements the controller's View and Notifier and never blocks the caller.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	bufferSize  int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		bufferSize:  64,
	}
}

func (h *Hub) subscribe() *subscriber {
	s := &subscriber{send: make(chan []byte, h.bufferSize)}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of connected pages
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Broadcast sends ev to every subscriber. Slow subscribers lose events.
func (h *Hub) Broadcast(ev Event) {
	data, err := encodeEvent(ev)
	if err != nil {
		log.Printf("[hub] %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			log.Printf("[hub] subscriber too slow, dropped %s event", ev.Type)
		}
	}
}

// SetProgress broadcasts the bar percentage with its label
func (h *Hub) SetProgress(pct float64, label string) {
	h.Broadcast(Event{Type: EventProgress, Progress: &pct, Label: label})
}

// SetLabel broadcasts a label change
func (h *Hub) SetLabel(label string) {
	h.Broadcast(Event{Type: EventLabel, Label: label})
}

// ShowFile broadcasts the file metadata line; empty hides it
func (h *Hub) ShowFile(meta string) {
	h.Broadcast(Event{Type: EventFile, Meta: &meta})
}

// ClearFileInput tells pages to clear their file picker
func (h *Hub) ClearFileInput() {
	h.Broadcast(Event{Type: EventClearInput})
}

// SetTriggerEnabled broadcasts whether the enhance button is usable
func (h *Hub) SetTriggerEnabled(enabled bool) {
	h.Broadcast(Event{Type: EventTrigger, Enabled: &enabled})
}

// ShowResult broadcasts the result link; empty hides it
func (h *Hub) ShowResult(url string) {
	h.Broadcast(Event{Type: EventResult, URL: &url})
}

// Notify pushes a user-facing message
func (h *Hub) Notify(msg string) {
	log.Printf("[hub] notify: %s", msg)
	h.Broadcast(Event{Type: EventNotify, Message: msg})
}

func encodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	return data, nil
}
