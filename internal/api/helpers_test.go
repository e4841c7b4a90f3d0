package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/api"
	"github.com/vrsandeep/tunedl/internal/config"
	"github.com/vrsandeep/tunedl/internal/core"
	"github.com/vrsandeep/tunedl/internal/fetcher"
	"github.com/vrsandeep/tunedl/internal/models"
	"github.com/vrsandeep/tunedl/internal/testutil"
)

func okFetcher() fetcher.Fetcher {
	return fetcher.Func(func(ctx context.Context, item models.WorkItem, onProgress fetcher.ProgressFunc) (*fetcher.Result, error) {
		onProgress(1, 1)
		return &fetcher.Result{Title: item.URL}, nil
	})
}

// setupTestServer builds a full App on an in-memory database.
func setupTestServer(t *testing.T, f fetcher.Fetcher) (*api.Server, *core.App) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Path = ":memory:"
	cfg.Auth.JWTSecret = testutil.TestSecret

	app, err := core.NewWithConfig(cfg, zap.NewNop(), core.WithFetcher(f))
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(app.Close)
	return api.NewServer(app), app
}

type client struct {
	t      *testing.T
	router http.Handler
}

func (c client) do(method, path, owner, role string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		testutil.Authorize(c.t, req, owner, role)
	}
	rr := httptest.NewRecorder()
	c.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
