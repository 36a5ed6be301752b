// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// CodeControlUnavailable marks a control socket that could not be reached.
const CodeControlUnavailable = "CONTROL_UNAVAILABLE"

// CodeControlRequestFailed marks a request the server rejected.
const CodeControlRequestFailed = "CONTROL_REQUEST_FAILED"

// Client talks to a control socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	return &resp, c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &resp)
}

// Status calls GET /status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	return &resp, c.do(ctx, http.MethodGet, "/status", nil, http.StatusOK, &resp)
}

// Plugins calls GET /plugins.
func (c *Client) Plugins(ctx context.Context) (*PluginsResponse, error) {
	var resp PluginsResponse
	return &resp, c.do(ctx, http.MethodGet, "/plugins", nil, http.StatusOK, &resp)
}

// Load queues a load of dir and returns the command id.
func (c *Client) Load(ctx context.Context, dir string) (string, error) {
	var resp AcceptedResponse
	err := c.do(ctx, http.MethodPost, "/plugins/load", LoadRequest{Dir: dir}, http.StatusAccepted, &resp)
	return resp.CommandID, err
}

// Unload queues an unload of name and returns the command id.
func (c *Client) Unload(ctx context.Context, name string) (string, error) {
	var resp AcceptedResponse
	err := c.do(ctx, http.MethodPost, "/plugins/unload", UnloadRequest{Name: name}, http.StatusAccepted, &resp)
	return resp.CommandID, err
}

// Shutdown asks the host to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	var resp MessageResponse
	return c.do(ctx, http.MethodPost, "/shutdown", nil, http.StatusOK, &resp)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return oops.In("control").Wrapf(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	// The host part is ignored by the unix dialer.
	req, err := http.NewRequestWithContext(ctx, method, "http://plughost"+path, reader)
	if err != nil {
		return oops.In("control").Wrapf(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Code(CodeControlUnavailable).In("control").With("socket", c.socketPath).
			Wrapf(err, "control socket unreachable; is plughost running?")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		var msg MessageResponse
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		return oops.Code(CodeControlRequestFailed).In("control").
			With("path", path).
			With("status", resp.StatusCode).
			Errorf("%s %s: %s", method, path, msg.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.In("control").With("path", path).Wrapf(err, "failed to decode response")
	}
	return nil
}
