package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bftbank/core/internal/canon"
	"github.com/bftbank/core/internal/directory"
	"github.com/bftbank/core/internal/logger"
	"github.com/bftbank/core/internal/observability"
	"github.com/bftbank/core/internal/wire"
	"github.com/bftbank/core/ledger"
	"github.com/bftbank/core/reputation"
)

// LearnWindow is how long a proposer collects learn messages before
// deciding a round's outcome (spec §4.5 step 4, §5).
const LearnWindow = 10 * time.Second

// ErrNoQuorum is returned when the prepare phase fails to collect a
// majority of promises, or the learn phase collects nothing (spec §7
// "NoQuorum"): the proposal is aborted and no state-machine mutation
// occurs.
var ErrNoQuorum = errors.New("consensus: no quorum")

// Proposer drives the client-facing side of a consensus round: prepare,
// propose, await-learn, apply (spec §4.5). A proposer must not apply the
// command before the learn phase reconciles it — it is the last peer to
// apply, trusting the cross-verifiers' reconciled action.
type Proposer struct {
	selfID string

	counter uint64 // ++maxProposal, monotonically increasing per proposer

	dir    *directory.Table
	client wire.PeerClient
	rep    *reputation.Controller
	log    *slog.Logger
	obs    observability.Observability

	machine ledger.Machine
	state   ledger.State

	mu          sync.Mutex
	pending     map[uint64]chan wire.Learn
	executed    map[canon.Fingerprint]bool
	learnWindow time.Duration
}

// SetLearnWindow overrides the learn-collection window (default
// LearnWindow); tests use this to shrink round-trip latency.
func (p *Proposer) SetLearnWindow(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.learnWindow = d
}

// SetObservability wires the proposer's tracer and metrics registry; a
// process running more than one proposer shares one registry
// (registerMetrics is idempotent per registry).
func (p *Proposer) SetObservability(obs observability.Observability) {
	p.mu.Lock()
	p.obs = obs
	p.mu.Unlock()
	registerMetrics(obs.PrometheusRegisterer())
}

// NewProposer builds a proposer for selfID.
func NewProposer(selfID string, machine ledger.Machine, state ledger.State, dir *directory.Table, client wire.PeerClient, rep *reputation.Controller, log *slog.Logger) *Proposer {
	if log == nil {
		log = logger.Discard()
	}
	obs := observability.Default()
	registerMetrics(obs.PrometheusRegisterer())
	return &Proposer{
		selfID:      selfID,
		dir:         dir,
		client:      client,
		rep:         rep,
		log:         log,
		obs:         obs,
		machine:     machine,
		state:       state,
		pending:     make(map[uint64]chan wire.Learn),
		executed:    make(map[canon.Fingerprint]bool),
		learnWindow: LearnWindow,
	}
}

// HandleLearn routes an inbound learn message to its in-flight round, if
// any is still being awaited. Unknown or stale proposal numbers are
// dropped silently.
func (p *Proposer) HandleLearn(_ context.Context, msg wire.Learn) error {
	p.mu.Lock()
	ch, ok := p.pending[msg.ProposalNumber]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case ch <- msg:
	default:
	}
	return nil
}

func majorityThreshold(n int) int {
	return n/2 + 1
}

// Propose drives one full consensus round for cmd (spec §4.5):
// prepare a proposal number across the cluster, propose it, await the
// cross-verified learn outcome, then apply. Returns ErrNoQuorum when
// either the prepare phase or the learn phase fails to produce a
// decision.
func (p *Proposer) Propose(ctx context.Context, cmd wire.Action) error {
	n := atomic.AddUint64(&p.counter, 1)
	pn := ProposalNumber{N: n, ProposerID: p.selfID}
	peers := p.dir.Peers()

	reqID := uuid.NewString()
	ctx = logger.ContextWithRequestID(ctx, reqID)
	p.log.InfoContext(ctx, "proposer: starting round", logger.Proposal(n), logger.Request(reqID))

	ctx, span := p.obs.Tracer("consensus").Start(ctx, "propose",
		trace.WithAttributes(attribute.Int64("proposal_number", int64(n)), attribute.String("proposer_id", p.selfID), attribute.String("request_id", reqID)))
	defer span.End()

	if err := p.preparePhase(ctx, pn, peers); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	p.proposePhase(ctx, pn, cmd, peers)

	learns, err := p.awaitLearn(ctx, n, len(peers))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := p.applyLearned(ctx, learns, peers); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "committed")
	return nil
}

// preparePhase sends prepare(n) serially to every other peer (spec §4.5
// step 2: "serially"), counting promises against the strict majority of
// the contacted set.
func (p *Proposer) preparePhase(ctx context.Context, pn ProposalNumber, peers map[string]directory.Entry) error {
	required := majorityThreshold(len(peers))
	promises := 0
	for peerID, entry := range peers {
		addr, err := wire.Address(entry.URL, wire.ProtocolPortOffset)
		if err != nil {
			p.log.WarnContext(ctx, "proposer: bad peer address", logger.Peer(peerID), logger.Error(err))
			continue
		}
		reply, err := p.client.Prepare(ctx, addr, wire.Prepare{
			Type: "prepare", ProposalNumber: pn.N, ProposerID: pn.ProposerID,
		})
		if err != nil {
			p.log.DebugContext(ctx, "proposer: prepare unreachable", logger.Peer(peerID), logger.Error(err))
			continue
		}
		if reply.Status == wire.StatusPromise {
			promises++
		}
	}
	if promises < required {
		return fmt.Errorf("%w: got %d promises, need %d", ErrNoQuorum, promises, required)
	}
	return nil
}

// proposePhase distributes propose(n, cmd, selfId) to every other peer.
// This is fire-and-forget: the immediate reply is each acceptor's local
// validation view, useful only for telemetry (spec §4.5 step 3).
func (p *Proposer) proposePhase(ctx context.Context, pn ProposalNumber, cmd wire.Action, peers map[string]directory.Entry) {
	var wg sync.WaitGroup
	for peerID, entry := range peers {
		addr, err := wire.Address(entry.URL, wire.ProtocolPortOffset)
		if err != nil {
			continue
		}
		msg := wire.Propose{
			Type: "propose", ProposalNumber: pn.N, Action: cmd, ProposerID: pn.ProposerID,
		}
		wg.Add(1)
		go func(peerID, addr string) {
			defer wg.Done()
			reply, err := p.client.Propose(ctx, addr, msg)
			if err != nil {
				p.log.DebugContext(ctx, "proposer: propose unreachable", logger.Peer(peerID), logger.Error(err))
				return
			}
			p.log.DebugContext(ctx, "proposer: local vote telemetry", logger.Peer(peerID), slog.String("vote", reply))
		}(peerID, addr)
	}
	wg.Wait()
}

// awaitLearn collects learn messages for LearnWindow starting from the
// first arrival (spec §4.5 step 4). If no learn arrives within twice the
// window (no acceptor committed the round), it returns ErrNoQuorum.
func (p *Proposer) awaitLearn(ctx context.Context, n uint64, peerCount int) ([]wire.Learn, error) {
	ch := make(chan wire.Learn, peerCount)
	p.mu.Lock()
	p.pending[n] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, n)
		p.mu.Unlock()
	}()

	p.mu.Lock()
	window := p.learnWindow
	p.mu.Unlock()

	var learns []wire.Learn
	deadline := time.After(2 * window)

	for {
		select {
		case l := <-ch:
			learns = append(learns, l)
			if len(learns) == 1 {
				deadline = time.After(window)
			}
		case <-deadline:
			if len(learns) == 0 {
				return nil, fmt.Errorf("%w: no learn messages collected", ErrNoQuorum)
			}
			return learns, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// applyLearned verifies every collected learn reports the same action
// (spec §4.5 step 4: "if every collected action is identical, that is
// the committed command"), applies it exactly once, and settles
// reputation for every peer based on the malicious sets the
// cross-verifiers reported (spec §4.5 step 5).
func (p *Proposer) applyLearned(ctx context.Context, learns []wire.Learn, peers map[string]directory.Entry) error {
	first := learns[0].Action
	for _, l := range learns[1:] {
		eq, err := canon.Equal(first, l.Action)
		if err != nil {
			return fmt.Errorf("consensus: compare learned actions: %w", err)
		}
		if !eq {
			return fmt.Errorf("consensus: inconsistent learned actions across cross-verifiers")
		}
	}

	fp, err := p.machine.Fingerprint(first)
	if err != nil {
		return fmt.Errorf("consensus: fingerprint learned action: %w", err)
	}

	p.mu.Lock()
	alreadyExecuted := p.executed[fp]
	if !alreadyExecuted {
		p.executed[fp] = true
	}
	p.mu.Unlock()

	if alreadyExecuted {
		if reqID, ok := logger.RequestID(ctx); ok {
			p.log.DebugContext(ctx, "proposer: learned command already applied, skipping", logger.Request(reqID))
		}
	} else {
		if err := p.machine.Apply(first, p.state); err != nil {
			return fmt.Errorf("consensus: apply learned action: %w", err)
		}
	}

	malicious := make(map[string]bool)
	reported := make(map[string]bool)
	for _, l := range learns {
		reported[l.NodeID] = true
		for _, m := range l.MaliciousNodes {
			malicious[m] = true
		}
	}

	agreement := make(map[string]bool, len(peers))
	for peerID := range peers {
		agreement[peerID] = reported[peerID] && !malicious[peerID]
	}

	if p.rep != nil {
		if err := p.rep.SettleRound(ctx, agreement); err != nil {
			p.log.WarnContext(ctx, "proposer: reputation settlement error", logger.Error(err))
		}
	}
	return nil
}
