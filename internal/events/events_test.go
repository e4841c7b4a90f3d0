package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/models"
)

func TestOwnerTopic(t *testing.T) {
	topic := events.OwnerTopic("alice")
	assert.Equal(t, "owner:alice", topic)

	owner, ok := events.OwnerFromTopic(topic)
	assert.True(t, ok)
	assert.Equal(t, "alice", owner)

	_, ok = events.OwnerFromTopic(events.TopicDashboard)
	assert.False(t, ok)
	assert.True(t, events.IsGlobal(events.TopicDashboard))
	assert.False(t, events.IsGlobal(topic))
}

func TestEncodeProgressKeepsZeroCounters(t *testing.T) {
	data, err := events.Encode(events.DownloadProgress{Record: models.ProgressRecord{
		OwnerID: "alice",
		URL:     "https://example.com/a",
		Status:  models.StatusPending,
	}})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "download_progress", raw["type"])
	assert.Equal(t, "alice", raw["userId"])
	assert.Equal(t, "pending", raw["status"])
	assert.Equal(t, float64(0), raw["percentage"])
	assert.NotContains(t, raw, "error")
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	data, err := events.Encode(events.DashboardUpdated{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"dashboard_updated"}`, string(data))
}

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  events.Event
	}{
		{"queue", `{"type":"queue_updated","userId":"u1"}`, events.QueueUpdated{UserID: "u1"}},
		{"songs", `{"type":"songs_updated","userId":"u1"}`, events.SongsUpdated{UserID: "u1"}},
		{"users", `{"type":"users_updated"}`, events.UsersUpdated{}},
		{"dashboard", `{"type":"dashboard_updated"}`, events.DashboardUpdated{}},
		{"logs", `{"type":"logs_updated"}`, events.LogsUpdated{}},
		{"pong", `{"type":"pong"}`, events.Pong{}},
		{"batch error", `{"type":"download_error","userId":"u1","error":"boom"}`, events.DownloadError{UserID: "u1", Error: "boom"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := events.Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodeProgress(t *testing.T) {
	ev, err := events.Decode([]byte(`{"type":"download_progress","userId":"u1","url":"https://x/y","status":"downloading","percentage":42.5,"downloaded_bytes":425,"total_bytes":1000}`))
	require.NoError(t, err)

	p, ok := ev.(events.DownloadProgress)
	require.True(t, ok)
	assert.Equal(t, models.StatusDownloading, p.Record.Status)
	assert.Equal(t, 42.5, p.Record.Percentage)
	assert.Equal(t, int64(425), p.Record.DownloadedBytes)
	assert.Equal(t, int64(1000), p.Record.TotalBytes)
}

func TestDownloadCompleteRoundTrip(t *testing.T) {
	in := events.DownloadComplete{UserID: "u1", Result: models.BatchResult{
		Total: 2, Success: 1, Failed: 1,
		Items: []models.ItemResult{
			{URL: "https://x/a", Status: models.StatusError, Error: "404"},
			{URL: "https://x/b", Status: models.StatusCompleted},
		},
	}}
	data, err := events.Encode(in)
	require.NoError(t, err)

	out, err := events.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := events.Decode([]byte(`{"type":"song_change"}`))
	assert.Error(t, err)

	_, err = events.Decode([]byte(`not json`))
	assert.Error(t, err)
}
