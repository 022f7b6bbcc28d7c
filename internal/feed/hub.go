// Package feed broadcasts listing notifications to websocket subscribers.
// Clients subscribe to groups named after notification kinds, or to "all".
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/flex-integration/internal/events"
)

// GroupAll receives every notification.
const GroupAll = "all"

// Hub manages WebSocket connections and group subscriptions.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	unregister chan *Client
	broadcast  chan *groupMessage
	done       chan struct{}
	mu         sync.RWMutex
	encoder    *Encoder
	logger     *zap.Logger
}

type groupMessage struct {
	groups  []string
	payload []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) (*Hub, error) {
	enc, err := NewEncoder()
	if err != nil {
		return nil, err
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		broadcast:  make(chan *groupMessage, 256),
		done:       make(chan struct{}),
		encoder:    enc,
		logger:     logger,
	}, nil
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("feed hub shutting down")
			h.shutdown()
			return

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// add registers client and subscribes it to groups in one step. It reports
// false once the hub has shut down.
func (h *Hub) add(client *Client, groups []string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return false
	default:
	}

	h.clients[client] = true
	for _, group := range groups {
		h.joinLocked(client, group)
	}
	h.logger.Debug("client registered",
		zap.String("connID", client.connID),
		zap.Strings("groups", groups),
	)
	return true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	// Remove from all groups
	for group := range client.groups {
		if clients, ok := h.groups[group]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.groups, group)
			}
		}
	}
	close(client.send)
	h.logger.Debug("client unregistered", zap.String("connID", client.connID))
}

func (h *Hub) deliver(msg *groupMessage) {
	h.mu.RLock()
	seen := make(map[*Client]bool)
	var slow []*Client
	for _, group := range msg.groups {
		for client := range h.groups[group] {
			if seen[client] {
				continue
			}
			seen[client] = true

			frame, err := client.frame(msg.payload)
			if err != nil {
				h.logger.Warn("failed to encode frame", zap.String("connID", client.connID), zap.Error(err))
				continue
			}
			select {
			case client.send <- frame:
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	// Buffer full, disconnect
	for _, c := range slow {
		h.remove(c)
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
	close(h.done)
}

// Close releases the encoder. Call it after Run has returned and the HTTP
// server has stopped.
func (h *Hub) Close() {
	h.encoder.Close()
}

// reply queues a frame for one client unless it has already been removed.
func (h *Hub) reply(client *Client, payload []byte) {
	frame, err := client.frame(payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- frame:
	default:
	}
}

// JoinGroup adds a client to a group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	h.joinLocked(client, group)

	h.logger.Debug("client joined group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

func (h *Hub) joinLocked(client *Client, group string) {
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true
}

// LeaveGroup removes a client from a group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)
}

// GetActiveGroups returns all groups with at least one subscriber.
func (h *Hub) GetActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var groups []string
	for group, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify queues n for every subscriber of its kind and of GroupAll. It never
// blocks the caller: when the queue is full the notification is dropped.
func (h *Hub) Notify(_ context.Context, n events.Notification) error {
	payload, err := json.Marshal(buildDataMessage(string(n.Kind), n))
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	select {
	case h.broadcast <- &groupMessage{groups: []string{string(n.Kind), GroupAll}, payload: payload}:
	default:
		h.logger.Warn("feed queue full, dropping notification", zap.Int64("sequenceId", n.SequenceID))
	}
	return nil
}

// IsValidGroup reports whether group names a notification kind or GroupAll.
func IsValidGroup(group string) bool {
	switch events.Kind(group) {
	case events.KindPendingApproval, events.KindPublished, events.KindApproved:
		return true
	}
	return group == GroupAll
}
