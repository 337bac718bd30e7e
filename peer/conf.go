// Package peer wires a node's listeners, directory, registry client and
// consensus stack together and drives its lifecycle (spec §4.1/§4.2/§5).
package peer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bftbank/core/internal/observability"
	"github.com/bftbank/core/internal/wire"
	"github.com/bftbank/core/ledger"
)

// NodeConf configures one peer process, following the teacher's
// functional-options shape (NewNodeConf(required..., ...Option)).
type NodeConf struct {
	id          string
	addr        string
	registryURL string
	machine     ledger.Machine
	state       ledger.State

	obs observability.Observability
	log *slog.Logger

	heartbeatPeers []PeerSeed

	verifyWindow time.Duration
	learnWindow  time.Duration
}

// PeerSeed is a cluster member known at startup, used to bootstrap the
// directory before the registry round-trip completes (useful for tests
// and fixed-membership deployments that don't want to depend on registry
// timing).
type PeerSeed struct {
	ID  string
	URL string
}

// Option configures a NodeConf.
type Option func(*NodeConf)

// WithObservability overrides the default Observability (logger, tracer,
// metrics registry).
func WithObservability(obs observability.Observability) Option {
	return func(c *NodeConf) { c.obs = obs }
}

// WithLogger overrides the logger the node and its consensus stack use,
// independent of the rest of the Observability bundle.
func WithLogger(log *slog.Logger) Option {
	return func(c *NodeConf) { c.log = log }
}

// WithSeedPeers pre-populates the directory with known cluster members so
// the node can start participating before the registry round-trip
// completes.
func WithSeedPeers(peers ...PeerSeed) Option {
	return func(c *NodeConf) { c.heartbeatPeers = append(c.heartbeatPeers, peers...) }
}

// WithVerifyWindow overrides the acceptor's cross-verification collection
// window (production default is consensus.VerifyWindow); tests shrink
// this to run rounds in milliseconds.
func WithVerifyWindow(d time.Duration) Option {
	return func(c *NodeConf) { c.verifyWindow = d }
}

// WithLearnWindow overrides the proposer's learn collection window
// (production default is consensus.LearnWindow).
func WithLearnWindow(d time.Duration) Option {
	return func(c *NodeConf) { c.learnWindow = d }
}

// NewNodeConf validates and builds a NodeConf. addr is this node's base
// (protocol-port) address, e.g. "127.0.0.1:6000"; the verify/learn/
// directory ports are derived from it (internal/wire port offsets).
func NewNodeConf(id, addr, registryURL string, machine ledger.Machine, state ledger.State, opts ...Option) (*NodeConf, error) {
	if id == "" {
		return nil, fmt.Errorf("peer: node id required")
	}
	if _, _, err := wire.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("peer: invalid node address %q: %w", addr, err)
	}
	if registryURL == "" {
		return nil, fmt.Errorf("peer: registry url required")
	}
	if machine == nil {
		return nil, fmt.Errorf("peer: ledger machine required")
	}

	conf := &NodeConf{
		id:          id,
		addr:        addr,
		registryURL: registryURL,
		machine:     machine,
		state:       state,
		obs:         observability.Default(),
	}
	for _, opt := range opts {
		opt(conf)
	}
	if conf.log == nil {
		conf.log = conf.obs.Logger()
	}
	return conf, nil
}

// Observability returns the configured Observability bundle.
func (c *NodeConf) Observability() observability.Observability { return c.obs }
