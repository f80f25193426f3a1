package stream

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is the payload fanned out to clients following an activity session.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	StationID string    `json:"station_id,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	BadgeID   string    `json:"badge_id,omitempty"`
	At        time.Time `json:"at"`
}

const (
	EventStationArrival = "station_arrival"
	EventChildCheckIn   = "child_check_in"
	EventParentCheckIn  = "parent_check_in"
	EventBadgeAwarded   = "badge_awarded"
)

type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	close(client.Send)
}

// Publish marshals the event and broadcasts it under the event's session key.
// Delivery is fire-and-forget; slow subscribers miss messages.
func (h *Hub) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("stream marshal error: %v", err)
		return
	}
	h.Broadcast(event.SessionID, payload)
}

func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[sessionID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(sessionID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "activity:*:events")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		sessionID := sessionIDFromChannel(msg.Channel)
		h.mu.RLock()
		clients := h.clients[sessionID]
		h.mu.RUnlock()
		for client := range clients {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func redisChannel(sessionID string) string {
	return "activity:" + sessionID + ":events"
}

func sessionIDFromChannel(ch string) string {
	// activity:{session}:events
	const prefix = "activity:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) ||
		!strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
