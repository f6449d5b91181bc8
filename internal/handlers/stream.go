package handlers

import (
	"log"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-enhancer/internal/controller"
)

// StreamHandler pushes live controller updates over a websocket
type StreamHandler struct {
	hub  *Hub
	ctrl *controller.JobController
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(hub *Hub, ctrl *controller.JobController) *StreamHandler {
	return &StreamHandler{
		hub:  hub,
		ctrl: ctrl,
	}
}

// Handle sends a snapshot and then every view change until the page goes away
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	connID := uuid.New().String()
	sub := h.hub.subscribe()
	defer h.hub.unsubscribe(sub)

	log.Printf("[ws] connection established: %s", connID)

	snap := h.ctrl.Snapshot()
	hello, err := encodeEvent(Event{Type: EventSnapshot, State: snap})
	if err != nil {
		log.Printf("[ws] %s: %v", connID, err)
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, hello); err != nil {
		log.Printf("[ws] %s: write error: %v", connID, err)
		return
	}

	// the page only ever talks over HTTP; reads just detect the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[ws] %s: write error: %v", connID, err)
				return
			}
		case <-closed:
			log.Printf("[ws] connection closed: %s", connID)
			return
		}
	}
}
