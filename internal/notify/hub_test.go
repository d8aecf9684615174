package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-audio/internal/model"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubSendsInitialJobsThenUpdates(t *testing.T) {
	existing := model.NewJob("job-1", "https://example.com/v1", model.FormatMP3)
	hub := NewHub(func() []model.Job { return []model.Job{existing.Clone()} }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)

	initial := readMessage(t, conn)
	assert.JSONEq(t, `"initial_jobs"`, string(initial["type"]))
	var jobs []model.Job
	require.NoError(t, json.Unmarshal(initial["jobs"], &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	updated := existing.Clone()
	updated.UpdatedAt = existing.UpdatedAt.Add(time.Millisecond)
	updated.Status = model.StatusDownloading
	updated.Progress = &model.Progress{Status: "downloading", Percent: "42.0%"}
	hub.JobChanged(updated)

	update := readMessage(t, conn)
	assert.JSONEq(t, `"job_update"`, string(update["type"]))
	var job model.Job
	require.NoError(t, json.Unmarshal(update["job"], &job))
	assert.Equal(t, model.StatusDownloading, job.Status)
	assert.Equal(t, "42.0%", job.Progress.Percent)
}

func TestHubEmptySnapshotIsArray(t *testing.T) {
	hub := NewHub(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	initial := readMessage(t, dialHub(t, srv))
	assert.JSONEq(t, `[]`, string(initial["jobs"]))
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub := NewHub(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubJobChangedNeverBlocks(t *testing.T) {
	// Run is not started, so nothing drains the broadcast buffer.
	hub := NewHub(nil, nil)
	job := model.NewJob("job-1", "https://example.com/v1", model.FormatMP3).Clone()

	done := make(chan struct{})
	go func() {
		for i := 0; i < BroadcastBufferSize*2; i++ {
			hub.JobChanged(job)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("JobChanged blocked with a full buffer")
	}
}

func TestHubSkipsUpdatesOlderThanSnapshot(t *testing.T) {
	base := time.Now()
	snap := model.NewJob("job-1", "https://example.com/v1", model.FormatMP3).Clone()
	snap.Status = model.StatusProcessing
	snap.UpdatedAt = base

	hub := NewHub(func() []model.Job { return []model.Job{snap} }, nil)

	// queued before anyone connects and older than the snapshot
	stale := snap
	stale.Status = model.StatusQueued
	stale.UpdatedAt = base.Add(-time.Second)
	hub.JobChanged(stale)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	initial := readMessage(t, conn)
	assert.JSONEq(t, `"initial_jobs"`, string(initial["type"]))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	fresh := snap
	fresh.Status = model.StatusDownloading
	fresh.UpdatedAt = base.Add(time.Second)
	hub.JobChanged(fresh)

	next := readMessage(t, conn)
	var job model.Job
	require.NoError(t, json.Unmarshal(next["job"], &job))
	assert.Equal(t, model.StatusDownloading, job.Status)
}

func TestClientStale(t *testing.T) {
	now := time.Now()
	c := &client{baseline: map[string]time.Time{"a": now}}

	assert.False(t, c.stale(model.Job{ID: "other", UpdatedAt: now.Add(-time.Hour)}))
	assert.True(t, c.stale(model.Job{ID: "a", UpdatedAt: now}))
	assert.True(t, c.stale(model.Job{ID: "a", UpdatedAt: now.Add(-time.Second)}))
	assert.False(t, c.stale(model.Job{ID: "a", UpdatedAt: now.Add(time.Second)}))
	assert.NotContains(t, c.baseline, "a")
}
