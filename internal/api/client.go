package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/store"
)

// Client calls a running prospector server. It satisfies poller.Fetcher.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: hc}
}

// Trigger starts a run on the server.
func (c *Client) Trigger(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunAck, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "api client: marshal trigger")
	}
	var ack pipeline.RunAck
	if err := c.do(ctx, http.MethodPost, "/prospects/intelligence", body, http.StatusAccepted, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// FetchProspect reads the persisted record. A 404 maps to store.ErrNotFound.
func (c *Client) FetchProspect(ctx context.Context, website string) (*model.Prospect, error) {
	var p model.Prospect
	if err := c.do(ctx, http.MethodGet, "/prospects/"+url.PathEscape(website), nil, http.StatusOK, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, want int, dst any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return eris.Wrap(err, "api client: create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "api client: %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "api client: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return store.ErrNotFound
	}
	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return eris.Errorf("api client: %s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return eris.Wrap(err, "api client: decode response")
	}
	return nil
}
