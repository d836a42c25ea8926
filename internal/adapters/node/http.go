// Package node implements the instrument driver protocol client. Drivers
// expose a small REST surface: POST /actions, GET /actions/{id},
// GET /status, GET /info and POST /admin. Everything behind those routes is
// the driver's business.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labwire/workcell/internal/core"
)

// HTTPClient implements core.NodeClient over the driver REST protocol.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a client with the given per-request timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Action string                 `json:"action"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

type submitResponse struct {
	ActionID string `json:"action_id"`
}

type statusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// SubmitAction starts an action and returns the driver-side handle.
func (c *HTTPClient) SubmitAction(ctx context.Context, n *core.Node, action string, args map[string]interface{}) (string, error) {
	body, err := json.Marshal(submitRequest{Action: action, Args: args})
	if err != nil {
		return "", core.ErrInternal("encoding action request", err)
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, n.URL+"/actions", body, &resp); err != nil {
		return "", err
	}
	if resp.ActionID == "" {
		return "", core.ErrNode("NO_ACTION_ID", fmt.Sprintf("node %s accepted action without an id", n.Name))
	}
	return resp.ActionID, nil
}

// PollResult fetches the current result of a submitted action.
func (c *HTTPClient) PollResult(ctx context.Context, n *core.Node, actionID string) (*core.StepResult, error) {
	var result core.StepResult
	if err := c.do(ctx, http.MethodGet, n.URL+"/actions/"+actionID, nil, &result); err != nil {
		return nil, err
	}
	result.Truncate()
	return &result, nil
}

// GetStatus fetches the node's current status.
func (c *HTTPClient) GetStatus(ctx context.Context, n *core.Node) (core.NodeStatus, string, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, n.URL+"/status", nil, &resp); err != nil {
		return core.NodeStatusUnknown, "", err
	}
	switch status := core.NodeStatus(resp.Status); status {
	case core.NodeStatusReady, core.NodeStatusBusy, core.NodeStatusError,
		core.NodeStatusPaused, core.NodeStatusLocked:
		return status, resp.Detail, nil
	default:
		return core.NodeStatusUnknown, resp.Detail, nil
	}
}

// GetInfo fetches the node's static description.
func (c *HTTPClient) GetInfo(ctx context.Context, n *core.Node) (*core.NodeInfo, error) {
	var info core.NodeInfo
	if err := c.do(ctx, http.MethodGet, n.URL+"/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CancelAction asks the driver to abort one action. The abort is scoped to
// the action id so a node busy with someone else's work is left alone.
func (c *HTTPClient) CancelAction(ctx context.Context, n *core.Node, actionID string) error {
	return c.do(ctx, http.MethodPost, n.URL+"/actions/"+actionID+"/cancel", nil, nil)
}

// SendAdmin issues an administrative command. Best effort by contract.
func (c *HTTPClient) SendAdmin(ctx context.Context, n *core.Node, command core.AdminCommand) error {
	body, err := json.Marshal(map[string]string{"command": string(command)})
	if err != nil {
		return core.ErrInternal("encoding admin request", err)
	}
	return c.do(ctx, http.MethodPost, n.URL+"/admin", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return core.ErrInternal("building request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return core.ErrTransient("NODE_UNREACHABLE", err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.ErrTransient("NODE_READ", err.Error())
	}

	switch {
	case resp.StatusCode >= 500:
		return core.ErrTransient("NODE_SERVER_ERROR",
			fmt.Sprintf("%s %s: %d", method, url, resp.StatusCode))
	case resp.StatusCode >= 400:
		return core.ErrNode("NODE_REJECTED",
			fmt.Sprintf("%s %s: %d: %s", method, url, resp.StatusCode, truncate(string(data), 256)))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return core.ErrNode("NODE_BAD_RESPONSE", fmt.Sprintf("decoding response: %v", err))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ core.NodeClient = (*HTTPClient)(nil)
