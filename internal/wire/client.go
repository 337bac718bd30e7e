package wire

import "context"

// PeerClient is the seam consensus code talks to instead of calling Dial
// directly, so tests can substitute an in-memory fake
// (internal/testutils/fakewire) without opening real sockets.
type PeerClient interface {
	// Prepare sends a prepare message to addr's protocol port.
	Prepare(ctx context.Context, addr string, msg Prepare) (PrepareReply, error)
	// Propose sends a propose message to addr's protocol port, returning
	// the acceptor's immediate local-validation reply ("approved" |
	// "rejected"), used only for telemetry (spec §4.5 step 3).
	Propose(ctx context.Context, addr string, msg Propose) (string, error)
	// Verify broadcasts a vote record to addr's verification port.
	// Fire-and-forget: delivery failure is treated as the peer being
	// unreachable and does not block the round.
	Verify(ctx context.Context, addr string, msg Verify) error
	// Learn sends the reconciled outcome to addr's learn port (proposer).
	// Fire-and-forget.
	Learn(ctx context.Context, addr string, msg Learn) error
	// DirectoryPush pushes a registration record to addr's directory port.
	DirectoryPush(ctx context.Context, addr string, msg DirectoryPush) (DirectoryAck, error)
}

// Client is the real, socket-based PeerClient implementation.
type Client struct{}

// NewClient builds the real PeerClient.
func NewClient() *Client { return &Client{} }

func (c *Client) Prepare(ctx context.Context, addr string, msg Prepare) (PrepareReply, error) {
	var reply PrepareReply
	err := Dial(ctx, addr, msg, &reply)
	return reply, err
}

func (c *Client) Propose(ctx context.Context, addr string, msg Propose) (string, error) {
	var reply string
	err := Dial(ctx, addr, msg, &reply)
	return reply, err
}

func (c *Client) Verify(ctx context.Context, addr string, msg Verify) error {
	return Send(ctx, addr, msg)
}

func (c *Client) Learn(ctx context.Context, addr string, msg Learn) error {
	return Send(ctx, addr, msg)
}

func (c *Client) DirectoryPush(ctx context.Context, addr string, msg DirectoryPush) (DirectoryAck, error) {
	var ack DirectoryAck
	err := Dial(ctx, addr, msg, &ack)
	return ack, err
}

var _ PeerClient = (*Client)(nil)
