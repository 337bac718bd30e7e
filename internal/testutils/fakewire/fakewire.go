// Package fakewire is an in-memory stand-in for internal/wire, grounded
// on the retrieved pack's own fake-over-mock style for peer networking
// (testnetwork.MockNet): a shared switchboard routes by address instead
// of opening real sockets, and every sent message is kept for assertion.
package fakewire

import (
	"context"
	"fmt"
	"sync"

	"github.com/bftbank/core/internal/wire"
)

// Endpoint is one fake peer's inbound handlers, addressed by a logical
// address string the test chooses (e.g. "node-2").
type Endpoint struct {
	Prepare       func(ctx context.Context, msg wire.Prepare) (wire.PrepareReply, error)
	Propose       func(ctx context.Context, msg wire.Propose) (string, error)
	Verify        func(ctx context.Context, msg wire.Verify) error
	Learn         func(ctx context.Context, msg wire.Learn) error
	DirectoryPush func(ctx context.Context, msg wire.DirectoryPush) (wire.DirectoryAck, error)
}

// Sent records one message handed to Network, for test introspection.
type Sent struct {
	Addr    string
	Kind    string
	Message any
}

// Network is the shared switchboard every fake PeerClient dials through.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	sent      []Sent
	// Down holds addresses that behave as unreachable, simulating
	// wire.ErrUnreachable (crashed or partitioned peers).
	Down map[string]bool
}

// NewNetwork builds an empty switchboard.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*Endpoint), Down: make(map[string]bool)}
}

// Register attaches ep at addr, replacing any existing endpoint there.
func (n *Network) Register(addr string, ep *Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[addr] = ep
}

// SentMessages returns a copy of every message routed so far, in order.
func (n *Network) SentMessages() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Sent, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *Network) record(addr, kind string, msg any) {
	n.mu.Lock()
	n.sent = append(n.sent, Sent{Addr: addr, Kind: kind, Message: msg})
	n.mu.Unlock()
}

func (n *Network) endpoint(addr string) (*Endpoint, error) {
	n.mu.Lock()
	down := n.Down[addr]
	ep, ok := n.endpoints[addr]
	n.mu.Unlock()
	if down || !ok {
		return nil, fmt.Errorf("%w: %s", wire.ErrUnreachable, addr)
	}
	return ep, nil
}

// Client is the fake wire.PeerClient dialing through a shared Network.
type Client struct {
	net *Network
}

// NewClient builds a fake PeerClient routed through net.
func NewClient(net *Network) *Client {
	return &Client{net: net}
}

func (c *Client) Prepare(ctx context.Context, addr string, msg wire.Prepare) (wire.PrepareReply, error) {
	c.net.record(addr, wire.TypePrepare, msg)
	ep, err := c.net.endpoint(addr)
	if err != nil {
		return wire.PrepareReply{}, err
	}
	return ep.Prepare(ctx, msg)
}

func (c *Client) Propose(ctx context.Context, addr string, msg wire.Propose) (string, error) {
	c.net.record(addr, wire.TypePropose, msg)
	ep, err := c.net.endpoint(addr)
	if err != nil {
		return "", err
	}
	return ep.Propose(ctx, msg)
}

func (c *Client) Verify(ctx context.Context, addr string, msg wire.Verify) error {
	c.net.record(addr, wire.TypeVerify, msg)
	ep, err := c.net.endpoint(addr)
	if err != nil {
		return err
	}
	return ep.Verify(ctx, msg)
}

func (c *Client) Learn(ctx context.Context, addr string, msg wire.Learn) error {
	c.net.record(addr, wire.TypeLearn, msg)
	ep, err := c.net.endpoint(addr)
	if err != nil {
		return err
	}
	return ep.Learn(ctx, msg)
}

func (c *Client) DirectoryPush(ctx context.Context, addr string, msg wire.DirectoryPush) (wire.DirectoryAck, error) {
	c.net.record(addr, "directory_push", msg)
	ep, err := c.net.endpoint(addr)
	if err != nil {
		return wire.DirectoryAck{}, err
	}
	return ep.DirectoryPush(ctx, msg)
}

var _ wire.PeerClient = (*Client)(nil)
