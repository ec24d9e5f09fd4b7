package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/trackd/internal/config"
	"github.com/harun/trackd/internal/logger"
	"github.com/harun/trackd/pkg/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "0b6a8f51-7c55-4c39-9f1b-3f2f4c8c2a10"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Storage.Driver = config.StorageMemory
	cfg.Aggregation.Schedule = "@every 1h"
	cfg.Aggregation.RunOnStart = false
	cfg.Logging.AuditFile = filepath.Join(tmpDir, "audit.log")
	return cfg
}

// createTestDaemon creates a daemon on the in-memory backend
func createTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Output: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	d, err := New(cfg, log)
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))
	defer d.Close()

	assert.NotNil(t, d.backend)
	assert.NotNil(t, d.cache)
	assert.NotNil(t, d.GetTracker())
	assert.NotNil(t, d.GetJob())
	assert.NotNil(t, d.GetReader())
	assert.NotNil(t, d.GetServer())
	assert.NotNil(t, d.GetScheduler())
	assert.NotNil(t, d.eventLoop)
	assert.NotNil(t, d.lifecycle)
	assert.NotNil(t, d.GetConfig())
	assert.NotNil(t, d.GetLogger())
}

func TestNewWithoutScheduler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregation.Enabled = false

	d := createTestDaemon(t, cfg)
	defer d.Close()

	assert.Nil(t, d.GetScheduler())
}

func TestNewInvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregation.Schedule = "whenever"

	log, err := logger.New(logger.Config{Level: "error", Output: io.Discard})
	require.NoError(t, err)

	_, err = New(cfg, log)
	assert.ErrorContains(t, err, "failed to create scheduler")
}

func TestNewSQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.SQLite.Path = filepath.Join(cfg.DataDir, "trackd.db")

	d := createTestDaemon(t, cfg)
	defer d.Close()

	snap, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Metrics[analytics.MetricUniqueUsers])
}

func TestDaemonStartStop(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))

	require.NoError(t, d.Start())
	assert.True(t, d.Status().Running)
	assert.FileExists(t, d.lifecycle.PIDFile())

	assert.Error(t, d.Start(), "second start should fail")

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.NoFileExists(t, d.lifecycle.PIDFile())

	assert.Error(t, d.Stop(), "second stop should fail")
}

func TestDaemonStatus(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)
	assert.True(t, status.Storage.Healthy)

	require.NoError(t, d.Start())
	defer d.Stop()

	time.Sleep(20 * time.Millisecond)
	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
}

func TestDaemonServesTrackingAndMetrics(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))
	require.NoError(t, d.Start())
	defer d.Stop()

	base := "http://" + d.GetServer().Addr()

	resp, err := http.Get(base + "/api/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, _ := json.Marshal(map[string]string{"userId": testUserID})
	resp, err = http.Post(base+"/api/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body, _ = json.Marshal(map[string]string{"userId": testUserID, "action": "objectInView"})
	resp, err = http.Post(base+"/api/track", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, err = d.RunOnce(context.Background())
	require.NoError(t, err)

	resp, err = http.Get(base + "/api/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap analytics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.Metrics[analytics.MetricUniqueUsers])
	assert.Equal(t, int64(1), snap.Metrics[analytics.MetricUniqueUsersWithObjectInView])
}

func TestDaemonHealthIncludesComponents(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))
	require.NoError(t, d.Start())
	defer d.Stop()

	resp, err := http.Get("http://" + d.GetServer().Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Contains(t, health, "storage")
	assert.Contains(t, health, "cache")
	assert.Contains(t, health, "aggregation")
}

func TestDaemonWaitStopsOnContext(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))
	require.NoError(t, d.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Wait(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.False(t, d.Status().Running)
}
