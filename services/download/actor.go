package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"ytcourse/config"
)

// Actor run statuses as reported by the hosted downloader API.
const (
	RunStatusReady     = "READY"
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
	RunStatusAborted   = "ABORTED"
	RunStatusTimedOut  = "TIMED-OUT"
)

// RunInfo is the subset of an actor run record the pipeline cares about.
type RunInfo struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	DatasetID string `json:"defaultDatasetId"`
}

// Terminal reports whether the run can no longer change state.
func (r *RunInfo) Terminal() bool {
	switch r.Status {
	case RunStatusSucceeded, RunStatusFailed, RunStatusAborted, RunStatusTimedOut:
		return true
	}
	return false
}

// ActorResult is one item from a finished run's dataset.
type ActorResult struct {
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// ActorClient talks to the hosted video-downloader actor over its REST API.
type ActorClient struct {
	cfg    config.DownloaderConfig
	client *http.Client
}

func NewActorClient(cfg config.DownloaderConfig) *ActorClient {
	return &ActorClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit starts a run for videoURL and returns its initial state.
func (c *ActorClient) Submit(ctx context.Context, videoURL string) (*RunInfo, error) {
	if c.cfg.Token == "" {
		return nil, errors.New("downloader token not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"videoUrl": videoURL,
		"quality":  c.cfg.Quality,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding run input")
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs?token=%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.ActorID), url.QueryEscape(c.cfg.Token))

	var envelope struct {
		Data RunInfo `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &envelope); err != nil {
		return nil, errors.Wrap(err, "submitting actor run")
	}
	if envelope.Data.ID == "" {
		return nil, errors.New("actor run response has no id")
	}
	return &envelope.Data, nil
}

// RunStatus fetches the current state of a run.
func (c *ActorClient) RunStatus(ctx context.Context, runID string) (*RunInfo, error) {
	endpoint := fmt.Sprintf("%s/v2/actor-runs/%s?token=%s",
		c.cfg.BaseURL, url.PathEscape(runID), url.QueryEscape(c.cfg.Token))

	var envelope struct {
		Data RunInfo `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &envelope); err != nil {
		return nil, errors.Wrap(err, "fetching run status")
	}
	return &envelope.Data, nil
}

// Abort requests cancellation of a run that is no longer wanted.
func (c *ActorClient) Abort(ctx context.Context, runID string) error {
	endpoint := fmt.Sprintf("%s/v2/actor-runs/%s/abort?token=%s",
		c.cfg.BaseURL, url.PathEscape(runID), url.QueryEscape(c.cfg.Token))

	var envelope struct {
		Data RunInfo `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, nil, &envelope); err != nil {
		return errors.Wrap(err, "aborting run")
	}
	return nil
}

// Result returns the first dataset item of a succeeded run.
func (c *ActorClient) Result(ctx context.Context, datasetID string) (*ActorResult, error) {
	endpoint := fmt.Sprintf("%s/v2/datasets/%s/items?token=%s",
		c.cfg.BaseURL, url.PathEscape(datasetID), url.QueryEscape(c.cfg.Token))

	var items []ActorResult
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, errors.Wrap(err, "fetching run results")
	}
	if len(items) == 0 || items[0].DownloadURL == "" {
		return nil, errors.New("run dataset has no download url")
	}
	return &items[0], nil
}

func (c *ActorClient) doJSON(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
