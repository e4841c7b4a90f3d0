package api_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/tunedl/internal/fetcher"
	"github.com/vrsandeep/tunedl/internal/models"
)

func TestQueueHandlers(t *testing.T) {
	server, _ := setupTestServer(t, okFetcher())
	c := client{t: t, router: server.Router()}

	rr := c.do("POST", "/api/queue", "alice", models.RoleUser, map[string]any{
		"urls": []string{"https://x/a", " https://x/b ", "https://x/a", "", "not a url"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 2, decode[map[string]int](t, rr)["added"])

	rr = c.do("POST", "/api/queue", "alice", models.RoleUser, map[string]any{"urls": []string{"https://x/b"}})
	assert.Equal(t, 0, decode[map[string]int](t, rr)["added"], "already queued")

	rr = c.do("GET", "/api/queue", "alice", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"https://x/a", "https://x/b"}, decode[map[string][]string](t, rr)["urls"])

	rr = c.do("GET", "/api/queue", "bob", models.RoleUser, nil)
	assert.Equal(t, []string{}, decode[map[string][]string](t, rr)["urls"], "queues are per owner")

	rr = c.do("DELETE", "/api/queue/item?url="+url.QueryEscape("https://x/a"), "alice", models.RoleUser, nil)
	assert.Equal(t, 1, decode[map[string]int](t, rr)["removed"])
	rr = c.do("DELETE", "/api/queue/item?url="+url.QueryEscape("https://x/a"), "alice", models.RoleUser, nil)
	assert.Equal(t, 0, decode[map[string]int](t, rr)["removed"])

	rr = c.do("DELETE", "/api/queue", "alice", models.RoleUser, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, decode[map[string]int](t, rr)["removed"])

	rr = c.do("DELETE", "/api/queue", "alice", models.RoleUser, nil)
	assert.Equal(t, 0, decode[map[string]int](t, rr)["removed"], "clearing an empty queue is a no-op")
}

func TestRemoveListedURLs(t *testing.T) {
	server, _ := setupTestServer(t, okFetcher())
	c := client{t: t, router: server.Router()}
	c.do("POST", "/api/queue", "alice", models.RoleUser, map[string]any{"urls": []string{"https://x/a", "https://x/b", "https://x/c"}})

	rr := c.do("DELETE", "/api/queue", "alice", models.RoleUser, map[string]any{"urls": []string{"https://x/a", "https://x/c", "https://x/z"}})
	assert.Equal(t, 2, decode[map[string]int](t, rr)["removed"])

	rr = c.do("GET", "/api/queue", "alice", models.RoleUser, nil)
	assert.Equal(t, []string{"https://x/b"}, decode[map[string][]string](t, rr)["urls"])
}

func TestEnqueueRejectsBadPayload(t *testing.T) {
	server, _ := setupTestServer(t, okFetcher())
	c := client{t: t, router: server.Router()}
	rr := c.do("POST", "/api/queue", "alice", models.RoleUser, "just a string")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStartBatch(t *testing.T) {
	release := make(chan struct{})
	f := fetcher.Func(func(ctx context.Context, item models.WorkItem, _ fetcher.ProgressFunc) (*fetcher.Result, error) {
		select {
		case <-release:
			return &fetcher.Result{Title: "done"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	server, app := setupTestServer(t, f)
	c := client{t: t, router: server.Router()}

	rr := c.do("POST", "/api/queue/start", "alice", models.RoleUser, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 0, decode[map[string]int](t, rr)["queued"], "empty queue is not an error")

	c.do("POST", "/api/queue", "alice", models.RoleUser, map[string]any{"urls": []string{"https://x/a", "https://x/b"}})
	rr = c.do("POST", "/api/queue/start", "alice", models.RoleUser, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 2, decode[map[string]int](t, rr)["queued"])

	rr = c.do("POST", "/api/queue/start", "alice", models.RoleUser, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = c.do("GET", "/api/queue", "alice", models.RoleUser, nil)
	assert.Equal(t, []string{}, decode[map[string][]string](t, rr)["urls"], "the batch drained the queue")

	type progress struct {
		Running bool                    `json:"running"`
		Items   []models.ProgressRecord `json:"items"`
	}
	rr = c.do("GET", "/api/progress", "alice", models.RoleUser, nil)
	p := decode[progress](t, rr)
	assert.True(t, p.Running)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "https://x/a", p.Items[0].URL)

	close(release)
	assert.Eventually(t, func() bool { return !app.Processor().Running("alice") }, 2*time.Second, 10*time.Millisecond)

	rr = c.do("GET", "/api/progress", "alice", models.RoleUser, nil)
	p = decode[progress](t, rr)
	assert.False(t, p.Running)
	for _, it := range p.Items {
		assert.Equal(t, models.StatusCompleted, it.Status)
		assert.Equal(t, "done", it.Title)
	}
}
