package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var ErrHubStopped = errors.New("realtime hub stopped")

// Hub owns every client and subscription; only Run touches the maps.
type Hub struct {
	clients map[*Client]bool
	topics  map[string]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan Event
	direct      chan directMessage
	done        chan struct{}

	snapshots Snapshotter
	fanout    Publisher
	upgrader  websocket.Upgrader
	log       logrus.FieldLogger
}

type subscription struct {
	client *Client
	topic  string
}

type directMessage struct {
	client  *Client
	payload []byte
}

func NewHub(snapshots Snapshotter, allowedOrigins []string, log logrus.FieldLogger) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		topics:      make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan Event, 256),
		direct:      make(chan directMessage, 64),
		done:        make(chan struct{}),
		snapshots:   snapshots,
		log:         log,
	}
	h.fanout = h
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// UsePublisher routes client-originated events (typing) through p, so they
// reach clients on other instances.
func (h *Hub) UsePublisher(p Publisher) {
	h.fanout = p
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			h.log.Info("Realtime hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("user_id", client.userID).Debug("WebSocket client connected")

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.log.WithField("user_id", client.userID).Debug("WebSocket client disconnected")
			}

		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			if h.topics[sub.topic] == nil {
				h.topics[sub.topic] = make(map[*Client]bool)
			}
			h.topics[sub.topic][sub.client] = true

		case sub := <-h.unsubscribe:
			h.removeFromTopic(sub.client, sub.topic)

		case msg := <-h.direct:
			if h.clients[msg.client] {
				h.send(msg.client, msg.payload)
			}

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).Warn("Failed to encode realtime event")
				continue
			}
			for client := range h.topics[ev.Topic] {
				h.send(client, payload)
			}
		}
	}
}

// Publish delivers ev to this instance's subscribers.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send drops clients whose buffer is full.
func (h *Hub) send(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.log.WithField("user_id", client.userID).Warn("Dropping slow WebSocket client")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	for topic := range h.topics {
		h.removeFromTopic(client, topic)
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) removeFromTopic(client *Client, topic string) {
	subs := h.topics[topic]
	if subs == nil {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// ServeWS upgrades a request already authenticated as userID.
func (h *Hub) ServeWS(c *gin.Context, userID string) {
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := newClient(h, conn, userID)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// native clients do not send an Origin
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
