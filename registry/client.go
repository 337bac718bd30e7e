package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the HTTP client peer nodes use to talk to the registry.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient builds a registry client talking to baseURL (e.g.
// "http://127.0.0.1:5000").
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, hc: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("registry client: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("registry client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("registry client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("registry client: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// RegisterResult reports which of the two successful register outcomes the
// registry returned (201 first time, 200 already registered with the same
// URL). A peer's join sequence refreshes its directory and pushes its
// directory-port record in both cases (spec §4.2).
type RegisterResult struct {
	FirstTime bool
}

// Register registers nodeID at nodeURL with the registry. Returns an error
// for 409 Conflict (URL mismatch) or any transport failure.
func (c *Client) Register(ctx context.Context, nodeID, nodeURL string) (RegisterResult, error) {
	status, err := c.do(ctx, http.MethodPost, "/register", map[string]string{
		"node_id": nodeID, "node_url": nodeURL,
	}, nil)
	if err != nil {
		return RegisterResult{}, err
	}
	switch status {
	case http.StatusCreated:
		return RegisterResult{FirstTime: true}, nil
	case http.StatusOK:
		return RegisterResult{FirstTime: false}, nil
	default:
		return RegisterResult{}, fmt.Errorf("registry client: register %s: unexpected status %d", nodeID, status)
	}
}

// Deregister removes nodeID from the registry.
func (c *Client) Deregister(ctx context.Context, nodeID string) error {
	status, err := c.do(ctx, http.MethodPost, "/deregister", map[string]string{"node_id": nodeID}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("registry client: deregister %s: unexpected status %d", nodeID, status)
	}
	return nil
}

// Nodes returns the full node_id -> Record map.
func (c *Client) Nodes(ctx context.Context) (map[string]Record, error) {
	var out map[string]Record
	status, err := c.do(ctx, http.MethodGet, "/nodes", nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("registry client: nodes: unexpected status %d", status)
	}
	return out, nil
}

// TotalNodes returns the registered node count.
func (c *Client) TotalNodes(ctx context.Context) (int, error) {
	var out struct {
		Total int `json:"total_nodes"`
	}
	status, err := c.do(ctx, http.MethodGet, "/total_nodes", nil, &out)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("registry client: total_nodes: unexpected status %d", status)
	}
	return out.Total, nil
}

// IncreaseReputation bumps nodeID's reputation by amount (default 10 when
// amount is nil), clamped at 100 by the registry.
func (c *Client) IncreaseReputation(ctx context.Context, nodeID string, amount *int) (int, error) {
	return c.adjustReputation(ctx, "/reputation/increase", nodeID, amount)
}

// DecreaseReputation drops nodeID's reputation by amount (default 20 when
// amount is nil), clamped at 0 by the registry.
func (c *Client) DecreaseReputation(ctx context.Context, nodeID string, amount *int) (int, error) {
	return c.adjustReputation(ctx, "/reputation/decrease", nodeID, amount)
}

func (c *Client) adjustReputation(ctx context.Context, path, nodeID string, amount *int) (int, error) {
	body := map[string]any{"node_id": nodeID}
	if amount != nil {
		body["amount"] = *amount
	}
	var out struct {
		Reputation int `json:"reputation"`
	}
	status, err := c.do(ctx, http.MethodPost, path, body, &out)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("registry client: %s %s: unexpected status %d", path, nodeID, status)
	}
	return out.Reputation, nil
}

// Reputation fetches nodeID's current reputation.
func (c *Client) Reputation(ctx context.Context, nodeID string) (int, error) {
	var out struct {
		Reputation int `json:"reputation"`
	}
	status, err := c.do(ctx, http.MethodGet, "/reputation/"+nodeID, nil, &out)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("registry client: reputation %s: unexpected status %d", nodeID, status)
	}
	return out.Reputation, nil
}
