// Package client talks to the respack status server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"respack/internal/errors"
	"respack/internal/history"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// Health returns nil when the server reports healthy.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &body); err != nil {
		return err
	}
	if body.Status != "healthy" {
		return fmt.Errorf("server status: %q", body.Status)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. A limit of 0 returns all.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]*history.Run, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var runs []*history.Run
	if err := c.get(ctx, "/api/runs?"+q.Encode(), &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (c *Client) GetRun(ctx context.Context, id string) (*history.Run, error) {
	var run history.Run
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.NotFound(strings.TrimSpace(string(msg)))
	default:
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
