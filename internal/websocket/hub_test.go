package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/models"
)

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop(), opts)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func mockClient(hub *Hub, id string, user models.User, buffer int) *Client {
	return &Client{hub: hub, id: id, user: user, send: make(chan []byte, buffer)}
}

func receive(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "client queue was closed")
		ev, err := events.Decode(data)
		require.NoError(t, err)
		return ev
	case <-time.After(time.Second):
		t.Fatal("client did not receive broadcast message in time")
		return nil
	}
}

func TestHub(t *testing.T) {
	hub := newTestHub(t, Options{})
	client := mockClient(hub, "c1", models.User{ID: "alice"}, 4)

	hub.Subscribe(client, TopicsFor(client.user))
	assert.Equal(t, 1, hub.SubscriberCount(events.OwnerTopic("alice")))
	assert.Equal(t, []string{"alice"}, hub.ConnectedOwners())

	hub.Publish(events.OwnerTopic("alice"), events.QueueUpdated{UserID: "alice"})
	assert.Equal(t, events.QueueUpdated{UserID: "alice"}, receive(t, client))

	hub.Unsubscribe("c1")
	assert.Eventually(t, func() bool {
		return hub.SubscriberCount(events.OwnerTopic("alice")) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, hub.ConnectedOwners())

	_, ok := <-client.send
	assert.False(t, ok, "queue closed on unsubscribe")

	// A second unsubscribe is a no-op.
	hub.Unsubscribe("c1")
}

func TestHubTopicsAreIsolated(t *testing.T) {
	hub := newTestHub(t, Options{})
	alice := mockClient(hub, "a", models.User{ID: "alice"}, 4)
	bob := mockClient(hub, "b", models.User{ID: "bob"}, 4)
	hub.Subscribe(alice, TopicsFor(alice.user))
	hub.Subscribe(bob, TopicsFor(bob.user))

	hub.Publish(events.OwnerTopic("bob"), events.SongsUpdated{UserID: "bob"})
	hub.Publish(events.TopicDashboard, events.DashboardUpdated{})

	assert.Equal(t, events.SongsUpdated{UserID: "bob"}, receive(t, bob))
	assert.Equal(t, events.DashboardUpdated{}, receive(t, bob))
	assert.Equal(t, events.DashboardUpdated{}, receive(t, alice), "alice never sees bob's owner events")
}

func TestSlowClientDoesNotAffectOthers(t *testing.T) {
	hub := newTestHub(t, Options{})
	slow := mockClient(hub, "slow", models.User{ID: "x"}, 1)
	fast := mockClient(hub, "fast", models.User{ID: "y"}, 16)
	hub.Subscribe(slow, TopicsFor(slow.user))
	hub.Subscribe(fast, TopicsFor(fast.user))

	for i := 0; i < 5; i++ {
		hub.Publish(events.OwnerTopic("x"), events.QueueUpdated{UserID: "x"})
		hub.Publish(events.OwnerTopic("y"), events.QueueUpdated{UserID: "y"})
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, events.QueueUpdated{UserID: "y"}, receive(t, fast))
	}

	assert.Eventually(t, func() bool {
		return hub.SubscriberCount(events.OwnerTopic("x")) == 0
	}, time.Second, 5*time.Millisecond, "slow client is disconnected")
	assert.Equal(t, 1, hub.SubscriberCount(events.OwnerTopic("y")))
}

func TestPresenceIsPublishedToAdmins(t *testing.T) {
	hub := newTestHub(t, Options{})
	admin := mockClient(hub, "adm", models.User{ID: "root", Role: models.RoleAdmin}, 8)
	hub.Subscribe(admin, TopicsFor(admin.user))
	assert.Equal(t, events.UsersUpdated{}, receive(t, admin))

	first := mockClient(hub, "u1", models.User{ID: "alice"}, 8)
	second := mockClient(hub, "u2", models.User{ID: "alice"}, 8)
	hub.Subscribe(first, TopicsFor(first.user))
	assert.Equal(t, events.UsersUpdated{}, receive(t, admin))
	assert.Empty(t, first.send, "plain users do not see presence")

	hub.Subscribe(second, TopicsFor(second.user))
	hub.Unsubscribe("u1")
	hub.Publish(events.TopicLogs, events.LogsUpdated{})
	assert.Equal(t, events.LogsUpdated{}, receive(t, admin), "alice is still online through u2")

	hub.Unsubscribe("u2")
	assert.Equal(t, events.UsersUpdated{}, receive(t, admin))
}

func TestStopClosesClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), Options{})
	go hub.Run()
	c := mockClient(hub, "c", models.User{ID: "alice"}, 1)
	hub.Subscribe(c, TopicsFor(c.user))

	hub.Stop()
	hub.Stop()

	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("queue not closed on stop")
	}
	hub.Publish(events.TopicDashboard, events.DashboardUpdated{})
	hub.Unsubscribe("c")
}

func TestTopicsFor(t *testing.T) {
	assert.Equal(t, []string{"owner:alice", events.TopicDashboard}, TopicsFor(models.User{ID: "alice"}))
	assert.ElementsMatch(t,
		[]string{"owner:root", events.TopicDashboard, events.TopicUsers, events.TopicLogs},
		TopicsFor(models.User{ID: "root", Role: models.RoleAdmin}))
}

func TestIsPing(t *testing.T) {
	assert.True(t, isPing([]byte("ping")))
	assert.True(t, isPing([]byte(`"ping"`)))
	assert.True(t, isPing([]byte(" ping\n")))
	assert.False(t, isPing([]byte("pong")))
	assert.False(t, isPing([]byte(`{"type":"ping"}`)))
}

func dial(t *testing.T, hub *Hub, user models.User) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, user)
	}))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := events.Decode(data)
	require.NoError(t, err)
	return ev
}

func TestServeWsPingPong(t *testing.T) {
	hub := newTestHub(t, Options{})
	conn := dial(t, hub, models.User{ID: "alice"})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, events.Pong{}, readEvent(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`"ping"`)))
	assert.Equal(t, events.Pong{}, readEvent(t, conn))
}

func TestServeWsDeliversOwnerEvents(t *testing.T) {
	hub := newTestHub(t, Options{})
	conn := dial(t, hub, models.User{ID: "alice"})
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(events.OwnerTopic("alice")) == 1
	}, time.Second, 5*time.Millisecond)

	hub.Publish(events.OwnerTopic("bob"), events.QueueUpdated{UserID: "bob"})
	hub.Publish(events.OwnerTopic("alice"), events.QueueUpdated{UserID: "alice"})
	assert.Equal(t, events.QueueUpdated{UserID: "alice"}, readEvent(t, conn))
}

func TestServeWsUnsubscribesOnClose(t *testing.T) {
	hub := newTestHub(t, Options{})
	conn := dial(t, hub, models.User{ID: "alice"})
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(events.OwnerTopic("alice")) == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		return hub.SubscriberCount(events.OwnerTopic("alice")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWsClosesIdleConnections(t *testing.T) {
	hub := newTestHub(t, Options{PingInterval: time.Hour, IdleTimeout: 100 * time.Millisecond})
	conn := dial(t, hub, models.User{ID: "alice"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closes a silent connection")
	assert.Eventually(t, func() bool {
		return hub.SubscriberCount(events.OwnerTopic("alice")) == 0
	}, time.Second, 10*time.Millisecond)
}
