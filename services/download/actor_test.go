package download

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcourse/config"
)

func actorTestClient(baseURL string) *ActorClient {
	return NewActorClient(config.DownloaderConfig{
		Token:   "tok",
		BaseURL: baseURL,
		ActorID: "vendor~video-downloader",
		Quality: "720p",
	})
}

func TestActorSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/vendor~video-downloader/runs", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))

		var input map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "720p", input["quality"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"run-9","status":"READY","defaultDatasetId":"ds-9"}}`))
	}))
	defer srv.Close()

	run, err := actorTestClient(srv.URL).Submit(context.Background(), "https://www.youtube.com/watch?v=abc123DEF45")
	require.NoError(t, err)
	assert.Equal(t, "run-9", run.ID)
	assert.Equal(t, RunStatusReady, run.Status)
	assert.False(t, run.Terminal())
}

func TestActorSubmitWithoutToken(t *testing.T) {
	c := NewActorClient(config.DownloaderConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Submit(context.Background(), "url")
	assert.Error(t, err)
}

func TestActorRunStatusAndResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/actor-runs/run-9", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"run-9","status":"SUCCEEDED","defaultDatasetId":"ds-9"}}`))
	})
	mux.HandleFunc("/v2/datasets/ds-9/items", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"downloadUrl":"https://cdn.example.com/v.mp4","fileSize":777}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := actorTestClient(srv.URL)

	run, err := c.RunStatus(context.Background(), "run-9")
	require.NoError(t, err)
	assert.True(t, run.Terminal())

	res, err := c.Result(context.Background(), run.DatasetID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.mp4", res.DownloadURL)
	assert.Equal(t, int64(777), res.FileSize)
}

func TestActorResultEmptyDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := actorTestClient(srv.URL).Result(context.Background(), "ds-empty")
	assert.Error(t, err)
}

func TestRunInfoTerminal(t *testing.T) {
	for _, s := range []string{RunStatusSucceeded, RunStatusFailed, RunStatusAborted, RunStatusTimedOut} {
		assert.True(t, (&RunInfo{Status: s}).Terminal(), s)
	}
	for _, s := range []string{RunStatusReady, RunStatusRunning} {
		assert.False(t, (&RunInfo{Status: s}).Terminal(), s)
	}
}
