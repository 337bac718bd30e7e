package consensus

import (
	"sort"

	"github.com/bftbank/core/internal/canon"
	"github.com/bftbank/core/internal/wire"
)

// VoteRecord is one acceptor's verify vote for a proposal, as tallied by
// verifyTally[n] (spec §4.4/§4.6).
type VoteRecord struct {
	VoterID string
	Vote    string // wire.StatusApproved | wire.StatusRejected
	Cmd     wire.Action
}

// Outcome is the result of running the cross-verification engine once
// verifyDeadline[n] fires (spec §4.6).
type Outcome struct {
	// InsufficientWitnesses is set when fewer than 3 reputable votes were
	// collected; no other field is meaningful in that case.
	InsufficientWitnesses bool
	// Committed reports whether A >= threshold.
	Committed bool
	// MajorityCmd is the plurality-approved command, valid only when
	// Committed.
	MajorityCmd wire.Action
	// Malicious holds voter IDs that voted rejected, or voted approved for
	// a command other than MajorityCmd (spec §4.6 step 4b); meaningful
	// only when Committed. When not Committed, every approving voter is
	// considered dissenting from the rejection outcome instead (see
	// Acceptor.agreementMap).
	Malicious map[string]bool
}

// reputationLookup reports a peer's current reputation, used to filter
// the tally (spec §4.6 step 1).
type reputationLookup func(peerID string) (int, bool)

// crossVerify runs the tally/threshold/majority/malicious-set algorithm
// described in spec §4.6 over the vote records collected for one
// proposal number.
func crossVerify(records []VoteRecord, reputationOf reputationLookup, exclusionThreshold int) Outcome {
	reputable := make([]VoteRecord, 0, len(records))
	for _, r := range records {
		rep, ok := reputationOf(r.VoterID)
		if ok && rep < exclusionThreshold {
			continue
		}
		reputable = append(reputable, r)
	}

	total := len(reputable)
	if total < 3 {
		return Outcome{InsufficientWitnesses: true}
	}

	var approved, rejected []VoteRecord
	for _, r := range reputable {
		if r.Vote == wire.StatusApproved {
			approved = append(approved, r)
		} else {
			rejected = append(rejected, r)
		}
	}

	f := (total - 1) / 3
	threshold := 2*f + 1

	if len(approved) < threshold {
		return Outcome{Committed: false}
	}

	majorityCmd, majorityGroup := plurality(approved)

	malicious := make(map[string]bool, len(rejected))
	for _, r := range rejected {
		malicious[r.VoterID] = true
	}
	for _, r := range approved {
		if !majorityGroup[r.VoterID] {
			malicious[r.VoterID] = true
		}
	}

	return Outcome{Committed: true, MajorityCmd: majorityCmd, Malicious: malicious}
}

// plurality groups approved votes by the canonical form of their command
// and returns the largest group's command plus the set of voter IDs that
// belong to it. Ties are broken by lexicographic order of the group's
// canonical JSON (spec §4.6 "Tie-breaks").
func plurality(approved []VoteRecord) (wire.Action, map[string]bool) {
	type group struct {
		canonKey string
		cmd      wire.Action
		voters   map[string]bool
	}
	groups := make(map[string]*group)
	order := make([]string, 0, len(approved))

	for _, r := range approved {
		enc, err := canon.Encode(r.Cmd)
		key := string(enc)
		if err != nil {
			key = "" // malformed commands canon-encode to the empty group; never wins a tie
		}
		g, ok := groups[key]
		if !ok {
			g = &group{canonKey: key, cmd: r.Cmd, voters: make(map[string]bool)}
			groups[key] = g
			order = append(order, key)
		}
		g.voters[r.VoterID] = true
	}

	sort.Strings(order)

	var best *group
	for _, key := range order {
		g := groups[key]
		if best == nil || len(g.voters) > len(best.voters) {
			best = g
		}
		// order is already lexicographic, so the first group encountered
		// at the max size wins ties.
	}
	return best.cmd, best.voters
}
