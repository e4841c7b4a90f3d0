package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/models"
	"github.com/vrsandeep/tunedl/internal/testutil"
)

func newTestRelay(t *testing.T) (*Relay, *testutil.EventRecorder) {
	rec := testutil.NewEventRecorder()
	return New(rec, nil, "test", zaptest.NewLogger(t)), rec
}

func TestPublishGoesLocalAndToOutbox(t *testing.T) {
	r, rec := newTestRelay(t)
	r.Publish(events.OwnerTopic("alice"), events.QueueUpdated{UserID: "alice"})

	all := rec.All()
	require.Len(t, all, 1)
	assert.Equal(t, "owner:alice", all[0].Topic)

	m := <-r.outbox
	assert.Equal(t, r.origin, m.Origin)
	assert.Equal(t, events.TypeQueueUpdated, m.Event.Type)
}

func TestHandleRepublishesRemoteEvents(t *testing.T) {
	r, rec := newTestRelay(t)
	rec2 := events.DownloadProgress{Record: models.ProgressRecord{
		OwnerID: "bob", URL: "https://x/a", Status: models.StatusDownloading, Percentage: 40,
	}}
	payload, err := json.Marshal(wireMessage{Origin: "other", Topic: events.OwnerTopic("bob"), Event: rec2.Envelope()})
	require.NoError(t, err)

	require.NoError(t, r.handle(payload))
	got := rec.OfType(events.TypeDownloadProgress)
	require.Len(t, got, 1)
	assert.Equal(t, "owner:bob", got[0].Topic)
	assert.Equal(t, 40.0, got[0].Event.(events.DownloadProgress).Record.Percentage)
	assert.Empty(t, r.outbox, "relayed events are not sent back out")
}

func TestHandleIgnoresOwnMessages(t *testing.T) {
	r, rec := newTestRelay(t)
	payload, _ := json.Marshal(wireMessage{Origin: r.origin, Topic: events.TopicLogs, Event: events.LogsUpdated{}.Envelope()})
	require.NoError(t, r.handle(payload))
	assert.Empty(t, rec.All())
}

func TestHandleRejectsGarbage(t *testing.T) {
	r, rec := newTestRelay(t)
	assert.Error(t, r.handle([]byte("not json")))

	payload, _ := json.Marshal(wireMessage{Origin: "other", Topic: "x", Event: events.Envelope{Type: "bogus"}})
	assert.Error(t, r.handle(payload))
	assert.Empty(t, rec.All())
}

func TestCloseWithoutStart(t *testing.T) {
	r, _ := newTestRelay(t)
	r.Close()
}
