package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 4096
	snapshotTimeout = 10 * time.Second
)

// Topics a client can ask for.
const (
	TopicChats = "chats"
	TopicChat  = "chat"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionTyping      = "typing"
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string

	// chats this client subscribed to; read pump only.
	chats map[string]bool
}

// Request is a message sent by the client.
type Request struct {
	Action   string `json:"action"`
	Topic    string `json:"topic"`
	ChatID   string `json:"chatId,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		chats:  make(map[string]bool),
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("user_id", c.userID).Warn("WebSocket read error")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.sendError("", "malformed request")
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	switch req.Action {
	case ActionSubscribe:
		c.subscribe(ctx, req)
	case ActionUnsubscribe:
		topic := c.topicFor(req)
		if topic == "" {
			c.sendError("", "unknown topic")
			return
		}
		delete(c.chats, req.ChatID)
		select {
		case c.hub.unsubscribe <- subscription{client: c, topic: topic}:
		case <-c.hub.done:
		}
	case ActionTyping:
		if !c.chats[req.ChatID] {
			c.sendError(ChatTopic(req.ChatID), "not subscribed to chat")
			return
		}
		ev, err := NewEvent(ChatTopic(req.ChatID), EventTyping, Typing{
			ChatID:   req.ChatID,
			UserID:   c.userID,
			IsTyping: req.IsTyping,
		})
		if err == nil {
			if err := c.hub.fanout.Publish(ctx, ev); err != nil {
				c.hub.log.WithError(err).Warn("Failed to publish typing event")
			}
		}
	default:
		c.sendError("", "unknown action")
	}
}

// subscribe registers the topic before reading the snapshot so no change
// between the two is lost; the snapshot supersedes any earlier event.
func (c *Client) subscribe(ctx context.Context, req Request) {
	topic := c.topicFor(req)
	if topic == "" {
		c.sendError("", "unknown topic")
		return
	}

	if req.Topic == TopicChat {
		if err := c.hub.snapshots.AuthorizeChat(ctx, req.ChatID, c.userID); err != nil {
			c.sendError(topic, err.Error())
			return
		}
	}

	select {
	case c.hub.subscribe <- subscription{client: c, topic: topic}:
	case <-c.hub.done:
		return
	}

	var (
		data interface{}
		err  error
	)
	if req.Topic == TopicChat {
		c.chats[req.ChatID] = true
		data, err = c.hub.snapshots.ListMessages(ctx, req.ChatID, c.userID)
	} else {
		data, err = c.hub.snapshots.ListChats(ctx, c.userID)
	}
	if err != nil {
		c.hub.log.WithError(err).WithField("topic", topic).Warn("Failed to load snapshot")
		c.sendError(topic, "failed to load snapshot")
		return
	}

	ev, err := NewEvent(topic, EventSnapshot, data)
	if err != nil {
		return
	}
	c.sendEvent(ev)
}

func (c *Client) topicFor(req Request) string {
	switch req.Topic {
	case TopicChats:
		return ChatListTopic(c.userID)
	case TopicChat:
		if req.ChatID == "" {
			return ""
		}
		return ChatTopic(req.ChatID)
	}
	return ""
}

func (c *Client) sendError(topic, message string) {
	ev, err := NewEvent(topic, EventError, map[string]string{"error": message})
	if err != nil {
		return
	}
	c.sendEvent(ev)
}

func (c *Client) sendEvent(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, payload: payload}:
	case <-c.hub.done:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.WithError(err).WithField("user_id", c.userID).Debug("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
