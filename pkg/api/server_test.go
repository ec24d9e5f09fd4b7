package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/cache"
	"github.com/harun/trackd/pkg/session"
	"github.com/harun/trackd/pkg/storage"
	"github.com/harun/trackd/pkg/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "3f0e7a52-8d5e-4c1b-9a7e-2b6f1c0d9e44"

type testEnv struct {
	server *Server
	store  *memory.Store
	cache  *cache.Memory
	job    *analytics.Job
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	c := cache.NewMemory()
	reader := analytics.NewReader(c, "")
	srv, err := NewServer(Config{
		Port:    0,
		Tracker: session.NewTracker(session.NewManager(store)),
		Reader:  reader,
		Version: "test",
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	job := analytics.NewJob(store, store, c, analytics.JobConfig{})
	job.OnPublish(srv.Hub().Publish)

	return &testEnv{server: srv, store: store, cache: c, job: job}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestNewServer_Validation(t *testing.T) {
	store := memory.New()
	tracker := session.NewTracker(session.NewManager(store))
	reader := analytics.NewReader(cache.NewMemory(), "")

	_, err := NewServer(Config{Reader: reader})
	assert.Error(t, err)

	_, err = NewServer(Config{Tracker: tracker})
	assert.Error(t, err)

	_, err = NewServer(Config{Tracker: tracker, Reader: reader, Port: 70000})
	assert.Error(t, err)
}

func TestSaveSession(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/session", map[string]string{"userId": testUser}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var first session.Identity
	decodeBody(t, rec, &first)
	assert.Equal(t, testUser, first.UserID)
	assert.NotEmpty(t, first.ActiveSessionID)

	rec = env.do(t, http.MethodPost, "/api/session", map[string]string{"userId": testUser}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second session.Identity
	decodeBody(t, rec, &second)
	assert.NotEqual(t, first.ActiveSessionID, second.ActiveSessionID)
}

func TestInvalidRequests(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"session missing user", "/api/session", map[string]string{}},
		{"session non-uuid user", "/api/session", map[string]string{"userId": "not-a-uuid"}},
		{"session malformed json", "/api/session", "{"},
		{"refresh non-uuid user", "/api/session/refresh", map[string]string{"userId": "42"}},
		{"track missing action", "/api/track", map[string]string{"userId": testUser}},
		{"track unknown action", "/api/track", map[string]string{"userId": testUser, "action": "scroll"}},
		{"track non-uuid user", "/api/track", map[string]string{"userId": "x", "action": "pageVisit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"message":"Invalid request"}`, rec.Body.String())
		})
	}

	n, err := env.store.CountSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefreshSession(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/session/refresh", map[string]string{"userId": testUser}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Session not found"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/session", map[string]string{"userId": testUser}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created session.Identity
	decodeBody(t, rec, &created)

	rec = env.do(t, http.MethodPost, "/api/session/refresh", map[string]string{"userId": testUser}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed session.Identity
	decodeBody(t, rec, &refreshed)
	assert.NotEqual(t, created.ActiveSessionID, refreshed.ActiveSessionID)
}

func TestTrack(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/track", map[string]string{"userId": testUser, "action": "pageVisit"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"message":"Session not found"}`, rec.Body.String())
	})

	t.Run("records action with origin", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/session", map[string]string{"userId": testUser}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created session.Identity
		decodeBody(t, rec, &created)

		rec = env.do(t, http.MethodPost, "/api/track",
			map[string]string{"userId": testUser, "action": "objectInView"},
			map[string]string{"Origin": "http://localhost:3000"})
		require.Equal(t, http.StatusCreated, rec.Code)
		var got session.Identity
		decodeBody(t, rec, &got)
		assert.Equal(t, created, got)

		stored, err := env.store.FindOne(ctx, testUser)
		require.NoError(t, err)
		require.Len(t, stored.Actions, 1)
		assert.Equal(t, session.ActionObjectInView, stored.Actions[0].Type)
		assert.Equal(t, "http://localhost:3000", stored.Actions[0].Origin)
		assert.Equal(t, created.ActiveSessionID, stored.Actions[0].SessionID)
	})
}

func TestMetrics(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/api/metrics", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"message":"No data available"}`, rec.Body.String())

	for _, u := range []string{testUser, "6c1a4f0e-2b7d-4e8a-b3c9-5d0f1e2a3b4c"} {
		rec := env.do(t, http.MethodPost, "/api/session", map[string]string{"userId": u}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/track", map[string]string{"userId": testUser, "action": "objectInView"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	snap, err := env.job.Run(ctx)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got analytics.Snapshot
	decodeBody(t, rec, &got)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, int64(2), got.Metrics[analytics.MetricUniqueUsers])
	assert.Equal(t, int64(1), got.Metrics[analytics.MetricUniqueUsersWithObjectInView])
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, storage.Unavailable("get", errors.New("connection refused"))
}

func (brokenCache) Set(context.Context, string, []byte) error {
	return storage.Unavailable("set", errors.New("connection refused"))
}

func TestMetrics_CacheFailure(t *testing.T) {
	srv, err := NewServer(Config{
		Tracker: session.NewTracker(session.NewManager(memory.New())),
		Reader:  analytics.NewReader(brokenCache{}, ""),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestHealthAndPrometheus(t *testing.T) {
	env := setupTestServer(t)
	env.server.cfg.Status = func(context.Context) map[string]interface{} {
		return map[string]interface{}{"aggregation": env.job.State()}
	}

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "aggregation")

	rec = env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trackd_http_requests_total")
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/health", nil, map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartStop(t *testing.T) {
	env := setupTestServer(t)
	env.server.cfg.Host = "127.0.0.1"

	require.NoError(t, env.server.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, env.server.Stop(ctx))
}
