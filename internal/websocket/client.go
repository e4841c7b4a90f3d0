package websocket

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	pongs  chan struct{}
	id     string
	user   models.User
	topics []string

	sendOnce  sync.Once
	closeOnce sync.Once
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// close releases the subscription. Both pumps call it; only the first counts.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.Unsubscribe(c.id)
		c.conn.Close()
	})
}

// TopicsFor returns the topics a user's connection subscribes to: its own
// owner topic, the dashboard, and for admins the user and log views.
func TopicsFor(u models.User) []string {
	topics := []string{events.OwnerTopic(u.ID), events.TopicDashboard}
	if u.IsAdmin() {
		topics = append(topics, events.TopicUsers, events.TopicLogs)
	}
	return topics
}

// ServeWs upgrades the request and attaches the connection for an already
// authenticated user.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, user models.User) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		hub:  h,
		conn: conn,
		send:  make(chan []byte, h.opts.SendBuffer),
		pongs: make(chan struct{}, 1),
		id:    uuid.NewString(),
		user:  user,
	}
	h.Subscribe(c, TopicsFor(user))

	go c.writePump()
	go c.readPump()
}

// isPing accepts the keep-alive literal bare or JSON-quoted.
func isPing(msg []byte) bool {
	msg = bytes.TrimSpace(msg)
	return bytes.Equal(msg, []byte("ping")) || bytes.Equal(msg, []byte(`"ping"`))
}

func (c *Client) readPump() {
	defer c.close()

	idle := c.hub.opts.IdleTimeout
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(idle))
		if !isPing(msg) {
			continue
		}
		// send is owned by the hub, so replies go through their own channel.
		select {
		case c.pongs <- struct{}{}:
		default:
		}
	}
}

func (c *Client) writePump() {
	pong, _ := events.Encode(events.Pong{})
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.pongs:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, pong); err != nil {
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
