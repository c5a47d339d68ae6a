package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"audio-advisor/pkg/logging"

	"github.com/gorilla/websocket"
)

const (
	EventMessageCreated = "message_created"
	EventChatDeleted    = "chat_deleted"

	subscriberBuffer = 16
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketMessage struct {
	Type   string          `json:"type"`
	ChatID string          `json:"chat_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type subscriber struct {
	send chan WebSocketMessage
	done chan struct{}
}

// Hub fans chat events out to websocket subscribers. Delivery is best effort:
// an event for a subscriber whose buffer is full is dropped.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *Hub) subscribe(s *subscriber, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[chatID] == nil {
		h.subs[chatID] = make(map[*subscriber]struct{})
	}
	h.subs[chatID][s] = struct{}{}
}

func (h *Hub) unsubscribe(s *subscriber, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s, chatID)
}

func (h *Hub) removeLocked(s *subscriber, chatID string) {
	set := h.subs[chatID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, chatID)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID := range h.subs {
		h.removeLocked(s, chatID)
	}
}

// Publish delivers msg to every subscriber of chatID without blocking and
// returns how many subscribers accepted it.
func (h *Hub) Publish(chatID string, msg WebSocketMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs[chatID] {
		if s.offer(msg) {
			delivered++
		}
	}
	if dropped := len(h.subs[chatID]) - delivered; dropped > 0 {
		slog.Warn("dropped chat event for slow subscribers", "chat_id", chatID, "type", msg.Type, "dropped", dropped)
	}
	return delivered
}

func (h *Hub) subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[chatID])
}

func (s *subscriber) offer(msg WebSocketMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sub := &subscriber{
		send: make(chan WebSocketMessage, subscriberBuffer),
		done: make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeLoop(conn, sub)
	}()

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case "subscribe":
			if msg.ChatID == "" {
				sub.offer(WebSocketMessage{Type: "error", Error: "chat_id is required"})
				continue
			}
			h.hub.subscribe(sub, msg.ChatID)
			sub.offer(WebSocketMessage{Type: "subscribed", ChatID: msg.ChatID})
		case "unsubscribe":
			h.hub.unsubscribe(sub, msg.ChatID)
			sub.offer(WebSocketMessage{Type: "unsubscribed", ChatID: msg.ChatID})
		case "ping":
			sub.offer(WebSocketMessage{Type: "pong"})
		default:
			sub.offer(WebSocketMessage{Type: "error", Error: "unknown message type"})
		}
	}

	h.hub.remove(sub)
	close(sub.done)
	wg.Wait()
}

func writeLoop(conn *websocket.Conn, sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
