package services

import (
	"log"
	"sync"

	"bookshare/internal/core/domain"
)

// ============================================================
// SSE Hub
// ============================================================

// Event names pushed to connected clients
const (
	EventBookStatus    = "book_status"
	EventRequestUpdate = "request_update"
)

// SSEEvent represents a server-sent event
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// SSEClient represents a connected SSE client
type SSEClient struct {
	ID      string
	UserID  string
	Channel chan SSEEvent
}

// SSEHub manages all SSE connections
type SSEHub struct {
	mu      sync.RWMutex
	clients map[string]*SSEClient
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]*SSEClient),
	}
}

// Register adds a new SSE client
func (h *SSEHub) Register(client *SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("📡 SSE client registered: %s (user=%s) | total=%d", client.ID, client.UserID, len(h.clients))
}

// Unregister removes an SSE client and closes its channel
func (h *SSEHub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Channel)
		delete(h.clients, clientID)
		log.Printf("📡 SSE client unregistered: %s | total=%d", clientID, len(h.clients))
	}
}

// Broadcast sends an event to every client. Full channels are skipped.
func (h *SSEHub) Broadcast(event SSEEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.clients {
		select {
		case client.Channel <- event:
			sent++
		default:
			log.Printf("⚠️ SSE channel full for client %s, skipping", client.ID)
		}
	}
	return sent
}

// SendToUser sends an event to every connection of one user
func (h *SSEHub) SendToUser(userID string, event SSEEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Channel <- event:
			sent++
		default:
			log.Printf("⚠️ SSE channel full for user %s, skipping", userID)
		}
	}
	return sent
}

// GetClientCount returns the number of connected clients
func (h *SSEHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ============================================================
// NotificationService
// ============================================================

// Notifier receives committed lending changes
type Notifier interface {
	BookStatusChanged(bookID string, status domain.BookStatus)
	RequestUpdated(req domain.LendingRequest)
}

// BookStatusPayload is the data of a book_status event
type BookStatusPayload struct {
	BookID string            `json:"book_id"`
	Status domain.BookStatus `json:"status"`
}

// NotificationService pushes committed changes to SSE clients
type NotificationService struct {
	Hub *SSEHub
}

// NewNotificationService creates a notification service with its own hub
func NewNotificationService() *NotificationService {
	return &NotificationService{Hub: NewSSEHub()}
}

// BookStatusChanged broadcasts a book status to every client
func (n *NotificationService) BookStatusChanged(bookID string, status domain.BookStatus) {
	n.Hub.Broadcast(SSEEvent{
		Event: EventBookStatus,
		Data:  BookStatusPayload{BookID: bookID, Status: status},
	})
}

// RequestUpdated sends a request to its owner and requester
func (n *NotificationService) RequestUpdated(req domain.LendingRequest) {
	event := SSEEvent{Event: EventRequestUpdate, Data: req}
	n.Hub.SendToUser(req.OwnerID, event)
	if req.RequesterID != req.OwnerID {
		n.Hub.SendToUser(req.RequesterID, event)
	}
}

type noopNotifier struct{}

func (noopNotifier) BookStatusChanged(string, domain.BookStatus) {}
func (noopNotifier) RequestUpdated(domain.LendingRequest)        {}
