// Package fakeregistry is an in-memory stand-in for registry.Client,
// letting peer and consensus tests run without a real HTTP registry
// server, in the same fake-over-mock style as fakewire.
package fakeregistry

import (
	"context"
	"fmt"
	"sync"
)

const defaultReputation = 100

// Client is a fake registry.Client backed by a plain map.
type Client struct {
	mu    sync.Mutex
	nodes map[string]record
}

type record struct {
	url        string
	reputation int
}

// New builds an empty fake registry.
func New() *Client {
	return &Client{nodes: make(map[string]record)}
}

func (c *Client) Register(_ context.Context, nodeID, nodeURL string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.nodes[nodeID]; ok {
		if existing.url != nodeURL {
			return false, fmt.Errorf("fakeregistry: node %s already registered with a different url", nodeID)
		}
		return false, nil
	}
	c.nodes[nodeID] = record{url: nodeURL, reputation: defaultReputation}
	return true, nil
}

func (c *Client) Deregister(_ context.Context, nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[nodeID]; !ok {
		return fmt.Errorf("fakeregistry: node %s is not registered", nodeID)
	}
	delete(c.nodes, nodeID)
	return nil
}

// Nodes returns url/reputation for every registered node.
func (c *Client) Nodes(_ context.Context) (map[string]struct {
	URL        string
	Reputation int
}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]struct {
		URL        string
		Reputation int
	}, len(c.nodes))
	for id, rec := range c.nodes {
		out[id] = struct {
			URL        string
			Reputation int
		}{URL: rec.url, Reputation: rec.reputation}
	}
	return out, nil
}

func (c *Client) TotalNodes(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes), nil
}

func (c *Client) IncreaseReputation(_ context.Context, nodeID string, amount *int) (int, error) {
	return c.adjust(nodeID, amount, 10)
}

func (c *Client) DecreaseReputation(_ context.Context, nodeID string, amount *int) (int, error) {
	delta := -20
	if amount != nil {
		delta = -*amount
	}
	return c.adjustDelta(nodeID, delta)
}

func (c *Client) adjust(nodeID string, amount *int, defaultAmount int) (int, error) {
	delta := defaultAmount
	if amount != nil {
		delta = *amount
	}
	return c.adjustDelta(nodeID, delta)
}

func (c *Client) adjustDelta(nodeID string, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.nodes[nodeID]
	if !ok {
		return 0, fmt.Errorf("fakeregistry: node %s is not registered", nodeID)
	}
	rec.reputation += delta
	if rec.reputation > 100 {
		rec.reputation = 100
	}
	if rec.reputation < 0 {
		rec.reputation = 0
	}
	c.nodes[nodeID] = rec
	return rec.reputation, nil
}

func (c *Client) Reputation(_ context.Context, nodeID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.nodes[nodeID]
	if !ok {
		return 0, fmt.Errorf("fakeregistry: node %s is not registered", nodeID)
	}
	return rec.reputation, nil
}
