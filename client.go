package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a middleman between one websocket connection and the hub. Each
// client owns an editor session; the hub goroutine is the only thing that
// touches it.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	workbookID string
	userID     string
	session    *EditorSession
}

// deliver queues an outbound frame without blocking; a full buffer means
// the client is too slow and will be dropped by the caller.
func (c *Client) deliver(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// readPump forwards inbound frames to the hub. One goroutine per client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read: %v", err)
			}
			break
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("ws decode: %v", err)
			continue
		}
		msg.Workbook = c.workbookID
		msg.User = c.userID
		msg.client = c
		c.hub.events <- &msg
	}
}

// writePump flushes queued frames to the connection and keeps it alive with
// pings. One goroutine per client.
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

// serveWs upgrades an authenticated HTTP request to a websocket client
// bound to one workbook.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	username, err := globalUserManager.ValidateToken(token)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	workbookID := r.URL.Query().Get("workbook")
	workbook := globalWorkbookStore.Get(workbookID)
	if workbook == nil {
		http.Error(w, "Workbook not found", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		workbookID: workbookID,
		userID:     username,
	}
	client.session = newEditorSession(workbook, username)
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
