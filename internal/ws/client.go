package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kwhite/reclaim/internal/models"
	"github.com/kwhite/reclaim/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// inboundFrame is the only client->server frame on the live channel.
type inboundFrame struct {
	Message string `json:"message"`
}

// Client is one live chat connection. Its read pump forwards inbound text to
// the store (write-then-notify) and its write pump relays hub events; the two
// run as separate goroutines so neither wait starves the other.
type Client struct {
	hub   *Hub
	store store.Store
	conn  *websocket.Conn
	sub   *Subscriber

	userID       int
	conversation *models.Conversation
}

// ServeChatWs upgrades a chat room connection. The claimed user must be a
// participant of the conversation; either failure refuses the connection
// before the socket ever goes live.
func ServeChatWs(hub *Hub, st store.Store, w http.ResponseWriter, r *http.Request, userID, conversationID int) {
	conv, err := st.GetConversation(conversationID)
	if err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if !conv.HasParticipant(userID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:          hub,
		store:        st,
		conn:         conn,
		sub:          NewSubscriber(userID, conversationID),
		userID:       userID,
		conversation: conv,
	}
	hub.Subscribe(client.sub)

	// Opening the room clears unread state.
	if _, err := st.MarkRead(conversationID, userID); err != nil {
		log.Printf("mark read on connect: %v", err)
	}

	go client.writePump()
	go client.readPump()
}

// ServeNotifyWs upgrades a per-user notification connection: auth gate only,
// no conversation payloads, no read-marking side effect.
func ServeNotifyWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		sub:  NewSubscriber(userID, 0),
	}
	hub.Subscribe(client.sub)

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read: %v", err)
			}
			return
		}
		if c.conversation == nil {
			// Notification connections are push-only.
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		content := strings.TrimSpace(frame.Message)
		if content == "" {
			// Accidental keystrokes are dropped without an error.
			continue
		}

		// Durable write first; fan-out only after the message is safe.
		msg, err := c.store.AppendMessage(c.conversation.ID, c.userID, content)
		if err != nil {
			log.Printf("append message: %v", err)
			return
		}
		c.hub.Broadcast(msg)
		c.hub.Notify(c.conversation.OtherParticipant(c.userID), "new_message")
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
		case payload, ok := <-c.sub.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the mailbox.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
