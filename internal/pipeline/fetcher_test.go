package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/ternarybob/dragonfly/internal/services/events"
	"github.com/ternarybob/dragonfly/internal/services/tasks"
)

func newTestTaskService(store *memTasks) *tasks.Service {
	logger := arbor.NewLogger()
	return tasks.NewService(store, events.NewService(logger), logger)
}

func TestFetcherDownloadsVideo(t *testing.T) {
	content := []byte("fake video bytes")
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Write(content)
	}))
	defer server.Close()

	store := newMemTasks()
	enqueuer := &captureEnqueuer{}
	dir := t.TempDir()
	fetcher := NewFetcher(newTestTaskService(store), enqueuer, server.Client(), dir, "test-agent/1.0", arbor.NewLogger())

	job := models.FetchJob{AccountID: "acct-1", VideoID: "vid-1", Title: "My Video", LikeCount: 42, MediaURL: server.URL}
	require.NoError(t, fetcher.Fetch(context.Background(), "task-1", job))

	assert.Equal(t, "test-agent/1.0", gotUserAgent)

	path := common.DownloadFilePath(dir, "acct-1", "vid-1", "My Video", 42)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	task, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDownloaded, task.Status)
	assert.Equal(t, 100, task.Progress)

	queues, payloads := enqueuer.calls()
	require.Len(t, payloads, 1)
	assert.Equal(t, models.QueuePublish, queues[0])

	publishJob := payloads[0].(models.PublishJob)
	assert.Equal(t, "task-1", publishJob.TaskID)
	assert.Equal(t, path, publishJob.FilePath)
}

func TestFetcherSkipsExistingFile(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	store := newMemTasks()
	enqueuer := &captureEnqueuer{}
	dir := t.TempDir()

	path := common.DownloadFilePath(dir, "acct-1", "vid-1", "My Video", 42)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("already here"), 0644))

	fetcher := NewFetcher(newTestTaskService(store), enqueuer, server.Client(), dir, "", arbor.NewLogger())

	job := models.FetchJob{AccountID: "acct-1", VideoID: "vid-1", Title: "My Video", LikeCount: 42, MediaURL: server.URL}
	require.NoError(t, fetcher.Fetch(context.Background(), "task-1", job))

	assert.Equal(t, 0, hits)

	task, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDownloaded, task.Status)
	assert.Equal(t, 100, task.Progress)

	_, payloads := enqueuer.calls()
	require.Len(t, payloads, 1)
	assert.Equal(t, path, payloads[0].(models.PublishJob).FilePath)
}

func TestFetcherStreamFailureRemovesPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Advertise more bytes than are written so the client
		// sees an unexpected EOF mid-stream
		w.Header().Set("Content-Length", "1000000")
		w.Write([]byte("short"))
	}))
	defer server.Close()

	store := newMemTasks()
	enqueuer := &captureEnqueuer{}
	dir := t.TempDir()
	fetcher := NewFetcher(newTestTaskService(store), enqueuer, server.Client(), dir, "", arbor.NewLogger())

	job := models.FetchJob{AccountID: "acct-1", VideoID: "vid-1", Title: "My Video", LikeCount: 42, MediaURL: server.URL}
	assert.Error(t, fetcher.Fetch(context.Background(), "task-1", job))

	path := common.DownloadFilePath(dir, "acct-1", "vid-1", "My Video", 42)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	task, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDownloadFailed, task.Status)

	_, payloads := enqueuer.calls()
	assert.Empty(t, payloads)
}

func TestFetcherNon200Response(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := newMemTasks()
	fetcher := NewFetcher(newTestTaskService(store), &captureEnqueuer{}, server.Client(), t.TempDir(), "", arbor.NewLogger())

	job := models.FetchJob{AccountID: "acct-1", VideoID: "vid-1", Title: "My Video", MediaURL: server.URL}
	assert.Error(t, fetcher.Fetch(context.Background(), "task-1", job))

	task, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDownloadFailed, task.Status)
}

func TestFetcherEnqueueFailurePropagates(t *testing.T) {
	content := []byte("fake video bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Write(content)
	}))
	defer server.Close()

	store := newMemTasks()
	enqueuer := &captureEnqueuer{err: fmt.Errorf("queue unavailable")}
	fetcher := NewFetcher(newTestTaskService(store), enqueuer, server.Client(), t.TempDir(), "", arbor.NewLogger())

	job := models.FetchJob{AccountID: "acct-1", VideoID: "vid-1", Title: "My Video", MediaURL: server.URL}
	assert.Error(t, fetcher.Fetch(context.Background(), "task-1", job))

	// Download itself succeeded before the handoff failed
	task, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDownloaded, task.Status)
}
