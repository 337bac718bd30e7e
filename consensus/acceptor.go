// Package consensus implements the prepare/propose/cross-verify/learn
// protocol: the acceptor state machine (§4.4), the cross-verification
// engine (§4.6), and the proposer orchestrator (§4.5).
package consensus

import (
	"context"
	"log/slog"
	"sync"
	"time"

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

// VerifyWindow is how long an acceptor collects verify votes for a
// proposal number before tallying (spec §4.4/§5).
const VerifyWindow = 10 * time.Second

type instancePhase int

const (
	phaseVerifying instancePhase = iota
	phaseTallied
)

// instance is one proposal number's in-flight acceptor record
// (VERIFYING -> TALLIED -> LEARNED, spec §4.4).
type instance struct {
	n            ProposalNumber
	cmd          wire.Action
	proposerID   string
	votes        []VoteRecord
	phase        instancePhase
	deadlineSet  bool
}

// Acceptor is the per-peer acceptor state machine: promisedMax, the
// pending-instance table, the executed-request set, and the external
// state-machine adapter it drives (spec §4.4, §5 "Shared resources").
type Acceptor struct {
	mu sync.Mutex

	selfID      string
	promisedMax ProposalNumber
	instances   map[string]*instance
	executed    map[canon.Fingerprint]bool

	machine ledger.Machine
	state   ledger.State
	dir     *directory.Table
	client  wire.PeerClient
	rep     *reputation.Controller
	log     *slog.Logger
	obs     observability.Observability

	verifyWindow time.Duration
}

// SetVerifyWindow overrides the verify-collection window (default
// VerifyWindow); tests use this to shrink round-trip latency.
func (a *Acceptor) SetVerifyWindow(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyWindow = d
}

// SetObservability wires the acceptor's tracer and metrics registry; a
// process running more than one acceptor shares one registry
// (registerMetrics is idempotent per registry).
func (a *Acceptor) SetObservability(obs observability.Observability) {
	a.mu.Lock()
	a.obs = obs
	a.mu.Unlock()
	registerMetrics(obs.PrometheusRegisterer())
}

// NewAcceptor builds an acceptor for selfID, driving machine/state and
// using dir to discover peers to broadcast verify votes and send learns
// to.
func NewAcceptor(selfID string, machine ledger.Machine, state ledger.State, dir *directory.Table, client wire.PeerClient, rep *reputation.Controller, log *slog.Logger) *Acceptor {
	if log == nil {
		log = logger.Discard()
	}
	obs := observability.Default()
	registerMetrics(obs.PrometheusRegisterer())
	return &Acceptor{
		selfID:       selfID,
		instances:    make(map[string]*instance),
		executed:     make(map[canon.Fingerprint]bool),
		machine:      machine,
		state:        state,
		dir:          dir,
		client:       client,
		rep:          rep,
		log:          log,
		obs:          obs,
		verifyWindow: VerifyWindow,
	}
}

// HandlePrepare implements the prepare transition: promise iff n strictly
// exceeds promisedMax, otherwise reject. promisedMax is non-decreasing.
func (a *Acceptor) HandlePrepare(_ context.Context, msg wire.Prepare) (wire.PrepareReply, error) {
	n := ProposalNumber{N: msg.ProposalNumber, ProposerID: msg.ProposerID}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.promisedMax.Less(n) {
		a.promisedMax = n
		return wire.PrepareReply{Status: wire.StatusPromise, ProposalNumber: msg.ProposalNumber}, nil
	}
	return wire.PrepareReply{Status: wire.StatusReject, ProposalNumber: msg.ProposalNumber}, nil
}

// HandlePropose implements spec §4.4's propose transition: validate
// locally, broadcast the vote to every peer except the proposer, record
// it in this acceptor's own tally, and reply with the immediate local
// vote (used by the proposer only for telemetry).
func (a *Acceptor) HandlePropose(ctx context.Context, msg wire.Propose) (string, error) {
	n := ProposalNumber{N: msg.ProposalNumber, ProposerID: msg.ProposerID}

	a.mu.Lock()
	if !n.Equal(a.promisedMax) {
		a.mu.Unlock()
		a.broadcastVerify(ctx, n, msg.Action, msg.ProposerID, wire.StatusRejected)
		return wire.StatusRejected, nil
	}

	vote, err := a.machine.Validate(msg.Action, a.state)
	a.mu.Unlock()
	if err != nil {
		a.log.WarnContext(ctx, "acceptor: validate failed", logger.Proposal(msg.ProposalNumber), logger.Error(err))
		vote = ledger.Rejected
	}
	voteStatus := wire.StatusApproved
	if vote == ledger.Rejected {
		voteStatus = wire.StatusRejected
	}

	a.recordVote(ctx, n, msg.Action, msg.ProposerID, a.selfID, voteStatus)
	a.broadcastVerify(ctx, n, msg.Action, msg.ProposerID, voteStatus)

	return voteStatus, nil
}

func (p ProposalNumber) Equal(o ProposalNumber) bool {
	return p.N == o.N && p.ProposerID == o.ProposerID
}

// HandleVerify implements spec §4.4's verify transition: append the
// vote to verifyTally[n], starting verifyDeadline[n] on the first entry.
func (a *Acceptor) HandleVerify(ctx context.Context, msg wire.Verify) error {
	n := ProposalNumber{N: msg.ProposalNumber, ProposerID: msg.ProposerID}
	a.recordVote(ctx, n, msg.Action, msg.ProposerID, msg.NodeID, msg.Status)
	return nil
}

func (a *Acceptor) recordVote(ctx context.Context, n ProposalNumber, cmd wire.Action, proposerID, voterID, status string) {
	a.mu.Lock()
	inst, ok := a.instances[n.key()]
	if !ok {
		inst = &instance{n: n, cmd: cmd, proposerID: proposerID, phase: phaseVerifying}
		a.instances[n.key()] = inst
	}
	inst.votes = append(inst.votes, VoteRecord{VoterID: voterID, Vote: status, Cmd: cmd})
	firstEntry := !inst.deadlineSet
	if firstEntry {
		inst.deadlineSet = true
	}
	a.mu.Unlock()

	if firstEntry {
		time.AfterFunc(a.verifyWindow, func() {
			a.tally(ctx, n)
		})
	}
}

// broadcastVerify sends a verify message to every peer except proposerID
// (spec §4.4: "broadcast ... to every peer except the proposer").
func (a *Acceptor) broadcastVerify(ctx context.Context, n ProposalNumber, cmd wire.Action, proposerID, status string) {
	for peerID, entry := range a.dir.Peers() {
		if peerID == proposerID {
			continue
		}
		addr, err := wire.Address(entry.URL, wire.VerifyPortOffset)
		if err != nil {
			a.log.WarnContext(ctx, "acceptor: bad peer address", logger.Peer(peerID), logger.Error(err))
			continue
		}
		msg := wire.Verify{
			Type:           wire.TypeVerify,
			ProposalNumber: n.N,
			Status:         status,
			Action:         cmd,
			NodeID:         a.selfID,
			ProposerID:     proposerID,
		}
		go func(addr string) {
			if err := a.client.Verify(ctx, addr, msg); err != nil {
				a.log.DebugContext(ctx, "acceptor: verify broadcast unreachable", logger.Peer(peerID), logger.Error(err))
			}
		}(addr)
	}
}

// tally runs the cross-verification engine for n once its verify window
// has elapsed (spec §4.6), then settles reputation and, if committed,
// applies the reconciled command and sends learn to the proposer.
func (a *Acceptor) tally(ctx context.Context, n ProposalNumber) {
	a.mu.Lock()
	inst, ok := a.instances[n.key()]
	if !ok || inst.phase != phaseVerifying {
		a.mu.Unlock()
		return
	}
	inst.phase = phaseTallied
	votes := append([]VoteRecord(nil), inst.votes...)
	proposerID := inst.proposerID
	proposerCmd := inst.cmd
	obs := a.obs
	a.mu.Unlock()

	ctx, span := obs.Tracer("consensus").Start(ctx, "cross_verify",
		trace.WithAttributes(attribute.Int64("proposal_number", int64(n.N)), attribute.String("proposer_id", proposerID)))
	defer span.End()

	// The proposer never broadcasts an explicit verify, but every
	// acceptor's tally still counts a vote on the proposer's behalf toward
	// A/R and T. Rather than assuming approval, each acceptor derives that
	// vote the same way the proposer itself would have: by validating the
	// command against local state. Deterministic validation guarantees any
	// honest peer reaches the same verdict the proposer did — including an
	// invalid command the proposer authored against its own balance.
	proposerVote, err := a.machine.Validate(proposerCmd, a.state)
	if err != nil {
		a.log.WarnContext(ctx, "acceptor: validate proposer's own command failed", logger.Proposal(n.N), logger.Error(err))
		proposerVote = ledger.Rejected
	}
	proposerStatus := wire.StatusApproved
	if proposerVote == ledger.Rejected {
		proposerStatus = wire.StatusRejected
	}
	votes = append(votes, VoteRecord{VoterID: proposerID, Vote: proposerStatus, Cmd: proposerCmd})

	outcome := crossVerify(votes, func(peerID string) (int, bool) {
		e, ok := a.dir.Get(peerID)
		if !ok {
			return 0, false
		}
		return e.Reputation, true
	}, directory.ExclusionThreshold)

	if outcome.InsufficientWitnesses {
		abandonedTotal.Inc()
		span.SetStatus(codes.Error, "insufficient witnesses")
		a.log.InfoContext(ctx, "acceptor: insufficient witnesses, round abandoned", logger.Proposal(n.N))
		return
	}

	agreement := a.agreementMap(votes, outcome, proposerID)
	if a.rep != nil && len(agreement) > 0 {
		if err := a.rep.SettleRound(ctx, agreement); err != nil {
			a.log.WarnContext(ctx, "acceptor: reputation settlement error", logger.Error(err))
		}
	}

	span.SetAttributes(attribute.Bool("committed", outcome.Committed))
	if !outcome.Committed {
		rejectedTotal.Inc()
		span.SetStatus(codes.Ok, "rejected by threshold")
		a.log.InfoContext(ctx, "acceptor: proposal rejected by threshold", logger.Proposal(n.N))
		return
	}
	committedTotal.Inc()
	span.SetStatus(codes.Ok, "committed")

	a.applyAndLearn(ctx, n, proposerID, outcome)
}

// agreementMap builds the per-peer agree/disagree outcome used by the
// reputation controller: every peer known in the directory (other than
// the proposer, whose implicit vote is structural bookkeeping rather
// than a judged acceptor vote) either voted consistently with the
// round's outcome (agree), voted against it or was flagged malicious
// (disagree), or never voted at all — treated as TransportUnreachable,
// also a disagreement (spec §4.6 step 4e/5, §7).
func (a *Acceptor) agreementMap(votes []VoteRecord, outcome Outcome, proposerID string) map[string]bool {
	voted := make(map[string]VoteRecord, len(votes))
	for _, v := range votes {
		voted[v.VoterID] = v
	}

	agreement := make(map[string]bool)
	for peerID := range a.dir.Peers() {
		if peerID == proposerID {
			continue
		}
		rec, ok := voted[peerID]
		if !ok {
			agreement[peerID] = false // silent / unreachable
			continue
		}
		if outcome.Committed {
			agreement[peerID] = !outcome.Malicious[peerID]
		} else {
			agreement[peerID] = rec.Vote == wire.StatusRejected
		}
	}
	return agreement
}

func (a *Acceptor) applyAndLearn(ctx context.Context, n ProposalNumber, proposerID string, outcome Outcome) {
	fp, err := a.machine.Fingerprint(outcome.MajorityCmd)
	if err != nil {
		a.log.WarnContext(ctx, "acceptor: fingerprint failed", logger.Proposal(n.N), logger.Error(err))
		return
	}

	a.mu.Lock()
	alreadyExecuted := a.executed[fp]
	if !alreadyExecuted {
		a.executed[fp] = true
	}
	a.mu.Unlock()

	if !alreadyExecuted {
		if err := a.machine.Apply(outcome.MajorityCmd, a.state); err != nil {
			a.log.WarnContext(ctx, "acceptor: apply failed", logger.Proposal(n.N), logger.Error(err))
		}
	}

	malicious := make([]string, 0, len(outcome.Malicious))
	for id := range outcome.Malicious {
		malicious = append(malicious, id)
	}

	proposerEntry, ok := a.dir.Get(proposerID)
	if !ok {
		a.log.WarnContext(ctx, "acceptor: unknown proposer, cannot send learn", logger.Peer(proposerID))
		return
	}
	addr, err := wire.Address(proposerEntry.URL, wire.LearnPortOffset)
	if err != nil {
		a.log.WarnContext(ctx, "acceptor: bad proposer address", logger.Error(err))
		return
	}
	learn := wire.Learn{
		Type:           wire.TypeLearn,
		ProposalNumber: n.N,
		Action:         outcome.MajorityCmd,
		NodeID:         a.selfID,
		MaliciousNodes: malicious,
	}
	if err := a.client.Learn(ctx, addr, learn); err != nil {
		a.log.DebugContext(ctx, "acceptor: learn send unreachable", logger.Peer(proposerID), logger.Error(err))
	}
}
