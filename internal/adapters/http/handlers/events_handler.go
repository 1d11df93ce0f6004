package handlers

import (
	"bufio"
	"fmt"
	"log"
	"time"

	"bookshare/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
)

var sseJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// EventsHandler streams committed lending changes over SSE
type EventsHandler struct {
	notifyService *services.NotificationService
	heartbeat     time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(notifyService *services.NotificationService) *EventsHandler {
	return &EventsHandler{
		notifyService: notifyService,
		heartbeat:     30 * time.Second,
	}
}

// ============================================================
// GET /api/v1/events: book_status broadcasts and the caller's request updates
// ============================================================

// Stream opens the event stream
// @Summary Lending event stream
// @Description Server-sent events: book_status for every book, request_update for the caller's requests
// @Tags Events
// @Produce text/event-stream
// @Security BearerAuth
// @Router /events [get]
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	userID := currentUser(c)
	clientID := uuid.NewString()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	client := &services.SSEClient{
		ID:      clientID,
		UserID:  userID,
		Channel: make(chan services.SSEEvent, 64),
	}
	h.notifyService.Hub.Register(client)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.notifyService.Hub.Unregister(clientID)

		fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q}\n\n", clientID)
		if err := w.Flush(); err != nil {
			return
		}

		heartbeat := time.NewTicker(h.heartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case event, ok := <-client.Channel:
				if !ok {
					return
				}
				if err := writeSSEEvent(w, event); err != nil {
					log.Printf("📡 SSE client disconnected: %s", clientID)
					return
				}

			case <-heartbeat.C:
				fmt.Fprintf(w, ": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					log.Printf("📡 SSE client disconnected: %s", clientID)
					return
				}
			}
		}
	}))

	return nil
}

// writeSSEEvent writes one event frame and flushes it
func writeSSEEvent(w *bufio.Writer, event services.SSEEvent) error {
	data, err := sseJSON.Marshal(event.Data)
	if err != nil {
		log.Printf("⚠️ SSE encode %s failed: %v", event.Event, err)
		return nil
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
	return w.Flush()
}
