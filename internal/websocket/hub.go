// Package websocket fans published events out to connected observers. Each
// connection subscribes to its owner topic plus whichever global topics it
// may see; delivery to one connection never waits on another.
package websocket

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/events"
)

const defaultSendBuffer = 64

// Options tune connection handling.
type Options struct {
	// PingInterval is the keep-alive period clients are expected to honour.
	PingInterval time.Duration
	// IdleTimeout closes a connection that has sent nothing for this long.
	IdleTimeout time.Duration
	// SendBuffer is the per-connection outbound queue length. A full queue
	// marks the connection as slow and it is dropped.
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * o.PingInterval
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return o
}

type message struct {
	topic string
	data  []byte
}

// Hub maintains the set of active connections and their topic subscriptions.
// All mutation happens on the Run goroutine.
type Hub struct {
	opts Options
	log  *zap.Logger

	// guarded by mu for readers outside Run
	mu      sync.RWMutex
	clients map[string]*Client
	topics  map[string]map[*Client]struct{}
	owners  map[string]int

	register   chan *Client
	unregister chan string
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once
}

func NewHub(log *zap.Logger, opts Options) *Hub {
	return &Hub{
		opts:       opts.withDefaults(),
		log:        log,
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[*Client]struct{}),
		owners:     make(map[string]int),
		register:   make(chan *Client),
		unregister: make(chan string),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case id := <-h.unregister:
			h.remove(id)
		case m := <-h.broadcast:
			h.deliver(m)
		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop closes every connection's queue and ends Run. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Subscribe registers c for topics. Once it returns, every later Publish on
// one of those topics reaches c.
func (h *Hub) Subscribe(c *Client, topics []string) {
	c.topics = topics
	select {
	case h.register <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Unsubscribe drops the connection with the given id. Unknown ids are
// ignored, so calling it more than once is harmless.
func (h *Hub) Unsubscribe(connID string) {
	select {
	case h.unregister <- connID:
	case <-h.done:
	}
}

// Publish encodes ev once and queues it for every subscriber of topic. It
// never blocks on a subscriber.
func (h *Hub) Publish(topic string, ev events.Event) {
	data, err := events.Encode(ev)
	if err != nil {
		h.log.Error("could not encode event", zap.String("type", string(ev.Type())), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message{topic: topic, data: data}:
	case <-h.done:
	}
}

// SubscriberCount reports how many connections listen on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ConnectedOwners lists owners with at least one open connection.
func (h *Hub) ConnectedOwners() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.owners))
	for o := range h.owners {
		out = append(out, o)
	}
	return out
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	if old, ok := h.clients[c.id]; ok {
		h.detach(old)
	}
	h.clients[c.id] = c
	for _, t := range c.topics {
		subs, ok := h.topics[t]
		if !ok {
			subs = make(map[*Client]struct{})
			h.topics[t] = subs
		}
		subs[c] = struct{}{}
	}
	h.owners[c.user.ID]++
	first := h.owners[c.user.ID] == 1
	h.mu.Unlock()

	h.log.Debug("client registered", zap.String("conn", c.id), zap.String("owner", c.user.ID))
	if first {
		h.presenceChanged()
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	last := h.detach(c)
	h.mu.Unlock()

	h.log.Debug("client unregistered", zap.String("conn", id), zap.String("owner", c.user.ID))
	if last {
		h.presenceChanged()
	}
}

// detach removes c from every index and closes its queue. It reports whether
// c was its owner's last connection. Callers hold mu.
func (h *Hub) detach(c *Client) bool {
	delete(h.clients, c.id)
	for _, t := range c.topics {
		if subs, ok := h.topics[t]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, t)
			}
		}
	}
	c.closeSend()
	h.owners[c.user.ID]--
	if h.owners[c.user.ID] <= 0 {
		delete(h.owners, c.user.ID)
		return true
	}
	return false
}

func (h *Hub) deliver(m message) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.topics[m.topic] {
		select {
		case c.send <- m.data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow client", zap.String("conn", c.id), zap.String("owner", c.user.ID), zap.String("topic", m.topic))
		h.remove(c.id)
	}
}

// presenceChanged tells admin views that the set of connected users moved.
// Runs on the hub goroutine, so it delivers directly.
func (h *Hub) presenceChanged() {
	data, err := events.Encode(events.UsersUpdated{})
	if err != nil {
		return
	}
	h.deliver(message{topic: events.TopicUsers, data: data})
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.closeSend()
	}
	h.clients = make(map[string]*Client)
	h.topics = make(map[string]map[*Client]struct{})
	h.owners = make(map[string]int)
}
