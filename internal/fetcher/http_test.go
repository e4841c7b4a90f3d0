package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vrsandeep/tunedl/internal/models"
)

const page = `<!doctype html>
<html><head>
<title>Fallback Title</title>
<meta property="og:title" content="Night Drive">
<meta property="music:musician" content="The Band">
<meta property="og:audio" content="/media/night-drive.mp3">
</head><body></body></html>`

func newMediaServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	})
	mux.HandleFunc("/media/night-drive.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		http.ServeContent(w, r, "night-drive.mp3", time.Time{}, bytes.NewReader(payload))
	})
	mux.HandleFunc("/empty-page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Nothing</title></head></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcherFollowsOpenGraphLink(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 3*progressStep+10)
	srv := newMediaServer(t, payload)
	f := NewHTTPFetcher(t.TempDir(), 5*time.Second, zaptest.NewLogger(t))

	var calls [][2]int64
	res, err := f.Fetch(context.Background(), models.WorkItem{OwnerID: "alice", URL: srv.URL + "/track"}, func(d, total int64) {
		calls = append(calls, [2]int64{d, total})
	})
	require.NoError(t, err)

	assert.Equal(t, "Night Drive", res.Title)
	assert.Equal(t, "The Band", res.Artist)
	assert.NotEmpty(t, res.ExternalID)
	assert.Equal(t, int64(len(payload)), res.Bytes)
	assert.True(t, strings.HasSuffix(res.Path, ".mp3"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, int64(len(payload)), last[0])
	assert.Equal(t, int64(len(payload)), last[1])
}

func TestHTTPFetcherDirectDownload(t *testing.T) {
	srv := newMediaServer(t, []byte("direct"))
	f := NewHTTPFetcher(t.TempDir(), 0, zaptest.NewLogger(t))

	res, err := f.Fetch(context.Background(), models.WorkItem{OwnerID: "alice", URL: srv.URL + "/media/night-drive.mp3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "night-drive", res.Title)
	assert.Equal(t, int64(6), res.Bytes)
}

func TestHTTPFetcherFailures(t *testing.T) {
	srv := newMediaServer(t, nil)
	f := NewHTTPFetcher(t.TempDir(), time.Second, zaptest.NewLogger(t))

	_, err := f.Fetch(context.Background(), models.WorkItem{OwnerID: "alice", URL: srv.URL + "/missing"}, nil)
	assert.ErrorContains(t, err, "404")

	_, err = f.Fetch(context.Background(), models.WorkItem{OwnerID: "alice", URL: srv.URL + "/empty-page"}, nil)
	assert.ErrorContains(t, err, "no audio or video link")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, models.WorkItem{OwnerID: "alice", URL: srv.URL + "/track"}, nil)
	assert.Error(t, err)
}

func TestFinalizeWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	f := NewHTTPFetcher(dir, 0, zaptest.NewLogger(t))
	res := &Result{Title: "Song", Artist: "Band", ExternalID: "abc", Path: dir + "/song.mp3"}

	require.NoError(t, f.Finalize(context.Background(), models.WorkItem{URL: "https://x/song"}, res))

	data, err := os.ReadFile(res.Path + ".json")
	require.NoError(t, err)
	var tags map[string]string
	require.NoError(t, json.Unmarshal(data, &tags))
	assert.Equal(t, "Song", tags["title"])
	assert.Equal(t, "https://x/song", tags["source"])
}
