package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bftbank/core/consensus"
	"github.com/bftbank/core/internal/directory"
	"github.com/bftbank/core/internal/logger"
	"github.com/bftbank/core/internal/wire"
	"github.com/bftbank/core/registry"
	"github.com/bftbank/core/reputation"
)

// Node bundles one peer process's directory, registry client, wire
// transport and consensus stack, and owns its four logical listeners
// (protocol, verify, learn, directory — spec §4.1).
type Node struct {
	conf *NodeConf

	dir      *directory.Table
	reg      *registry.Client
	client   wire.PeerClient
	rep      *reputation.Controller
	acceptor *consensus.Acceptor
	proposer *consensus.Proposer
	log      *slog.Logger

	protocolLn  *wire.Listener
	verifyLn    *wire.Listener
	learnLn     *wire.Listener
	directoryLn *wire.Listener
}

// NewNode wires a Node from conf. Listeners are bound here (so a bind
// error is returned by NewNode, before Run) but not yet serving.
func NewNode(conf *NodeConf) (*Node, error) {
	dir := directory.New(conf.id)
	for _, seed := range conf.heartbeatPeers {
		dir.Put(directory.Entry{PeerID: seed.ID, URL: seed.URL, Reputation: 100})
	}

	regClient := registry.NewClient(conf.registryURL)
	client := wire.NewClient()
	rep := reputation.New(dir, regClient, conf.log)
	rep.SetObservability(conf.obs)

	acceptor := consensus.NewAcceptor(conf.id, conf.machine, conf.state, dir, client, rep, conf.log)
	acceptor.SetObservability(conf.obs)
	if conf.verifyWindow > 0 {
		acceptor.SetVerifyWindow(conf.verifyWindow)
	}

	proposer := consensus.NewProposer(conf.id, conf.machine, conf.state, dir, client, rep, conf.log)
	proposer.SetObservability(conf.obs)
	if conf.learnWindow > 0 {
		proposer.SetLearnWindow(conf.learnWindow)
	}

	protocolAddr, err := wire.Address(conf.addr, wire.ProtocolPortOffset)
	if err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}
	verifyAddr, err := wire.Address(conf.addr, wire.VerifyPortOffset)
	if err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}
	learnAddr, err := wire.Address(conf.addr, wire.LearnPortOffset)
	if err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}
	directoryAddr, err := wire.Address(conf.addr, wire.DirectoryPortOffset)
	if err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}

	protocolLn, err := wire.Listen(protocolAddr)
	if err != nil {
		return nil, err
	}
	verifyLn, err := wire.Listen(verifyAddr)
	if err != nil {
		return nil, err
	}
	learnLn, err := wire.Listen(learnAddr)
	if err != nil {
		return nil, err
	}
	directoryLn, err := wire.Listen(directoryAddr)
	if err != nil {
		return nil, err
	}

	return &Node{
		conf:        conf,
		dir:         dir,
		reg:         regClient,
		client:      client,
		rep:         rep,
		acceptor:    acceptor,
		proposer:    proposer,
		log:         conf.log,
		protocolLn:  protocolLn,
		verifyLn:    verifyLn,
		learnLn:     learnLn,
		directoryLn: directoryLn,
	}, nil
}

// Directory exposes the node's peer directory, for operator tooling that
// wants to print cluster membership.
func (n *Node) Directory() *directory.Table { return n.dir }

// Propose submits cmd through this node's proposer, for operator-facing
// client commands (create_account / deposit / withdraw — spec §4.5/§6).
func (n *Node) Propose(ctx context.Context, cmd wire.Action) error {
	return n.proposer.Propose(ctx, cmd)
}

// Query performs a local, consensus-free read through the ledger machine.
func (n *Node) Query(name string) (any, error) {
	return n.conf.machine.Query(name, n.conf.state)
}

// Run joins the cluster and serves until ctx is cancelled, at which point
// it deregisters from the registry and every listener stops (spec §4.2:
// join sequence of register, pull, push; §5 graceful shutdown).
func (n *Node) Run(ctx context.Context) error {
	if err := n.join(ctx); err != nil {
		return fmt.Errorf("peer: join cluster: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.protocolLn.Serve(ctx, n.handleProtocol, n.logServeErr("protocol"))
	})
	g.Go(func() error {
		return n.verifyLn.Serve(ctx, n.handleVerify, n.logServeErr("verify"))
	})
	g.Go(func() error {
		return n.learnLn.Serve(ctx, n.handleLearn, n.logServeErr("learn"))
	})
	g.Go(func() error {
		return n.directoryLn.Serve(ctx, n.handleDirectory, n.logServeErr("directory"))
	})

	<-ctx.Done()

	deregisterCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.reg.Deregister(deregisterCtx, n.conf.id); err != nil {
		n.log.Warn("peer: deregister failed", logger.Error(err))
	}

	_ = n.protocolLn.Close()
	_ = n.verifyLn.Close()
	_ = n.learnLn.Close()
	_ = n.directoryLn.Close()

	return g.Wait()
}

func (n *Node) logServeErr(listener string) func(error) {
	return func(err error) {
		n.log.Warn("peer: listener error", slog.String("listener", listener), logger.Error(err))
	}
}

// join implements the node join protocol (spec §4.2): register with the
// registry, pull the current node list into the local directory, then
// push a one-line registration record to every peer already in that
// list's directory port.
func (n *Node) join(ctx context.Context) error {
	n.dir.Put(directory.Entry{PeerID: n.conf.id, URL: n.conf.addr, Reputation: 100})

	if _, err := n.reg.Register(ctx, n.conf.id, n.conf.addr); err != nil {
		return err
	}

	nodes, err := n.reg.Nodes(ctx)
	if err != nil {
		return err
	}

	push := wire.DirectoryPush{
		n.conf.id: {URL: n.conf.addr, Reputation: 100},
	}

	for peerID, rec := range nodes {
		n.dir.Put(directory.Entry{PeerID: peerID, URL: rec.URL, Reputation: rec.Reputation})
		if peerID == n.conf.id {
			continue
		}
		addr, err := wire.Address(rec.URL, wire.DirectoryPortOffset)
		if err != nil {
			n.log.Warn("peer: bad peer address during join", logger.Peer(peerID), logger.Error(err))
			continue
		}
		if _, err := n.client.DirectoryPush(ctx, addr, push); err != nil {
			n.log.Debug("peer: directory push unreachable", logger.Peer(peerID), logger.Error(err))
		}
	}
	return nil
}

type typeEnvelope struct {
	Type string `json:"type"`
}

// handleProtocol dispatches the protocol port's two message types
// (prepare and propose — spec §6) by sniffing the shared "type" field.
func (n *Node) handleProtocol(ctx context.Context, raw json.RawMessage) (any, error) {
	var env typeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	switch env.Type {
	case wire.TypePrepare:
		var msg wire.Prepare
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
		}
		return n.acceptor.HandlePrepare(ctx, msg)
	case wire.TypePropose:
		var msg wire.Propose
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
		}
		return n.acceptor.HandlePropose(ctx, msg)
	default:
		return nil, fmt.Errorf("%w: unknown protocol message type %q", wire.ErrMalformed, env.Type)
	}
}

func (n *Node) handleVerify(ctx context.Context, raw json.RawMessage) (any, error) {
	var msg wire.Verify
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	return nil, n.acceptor.HandleVerify(ctx, msg)
}

func (n *Node) handleLearn(ctx context.Context, raw json.RawMessage) (any, error) {
	var msg wire.Learn
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	return nil, n.proposer.HandleLearn(ctx, msg)
}

// handleDirectory merges a pushed registration record into the local
// directory and acknowledges it (spec §4.2 join step c).
func (n *Node) handleDirectory(_ context.Context, raw json.RawMessage) (any, error) {
	var push wire.DirectoryPush
	if err := json.Unmarshal(raw, &push); err != nil {
		return wire.DirectoryAck{Status: "error", Message: err.Error()}, nil
	}
	for peerID, entry := range push {
		n.dir.Put(directory.Entry{PeerID: peerID, URL: entry.URL, Reputation: entry.Reputation})
	}
	return wire.DirectoryAck{Status: "success"}, nil
}
