package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/internal/wire"
)

func reputations(m map[string]int) reputationLookup {
	return func(peerID string) (int, bool) {
		rep, ok := m[peerID]
		return rep, ok
	}
}

func TestCrossVerify_InsufficientWitnesses(t *testing.T) {
	records := []VoteRecord{
		{VoterID: "2", Vote: wire.StatusApproved},
		{VoterID: "3", Vote: wire.StatusApproved},
	}
	out := crossVerify(records, reputations(map[string]int{"2": 100, "3": 100}), 50)
	require.True(t, out.InsufficientWitnesses)
}

func TestCrossVerify_CommitsOnMajorityApproval(t *testing.T) {
	cmd := wire.Action{"action": "deposit", "name": "Alice", "amount": 10.0}
	records := []VoteRecord{
		{VoterID: "2", Vote: wire.StatusApproved, Cmd: cmd},
		{VoterID: "3", Vote: wire.StatusApproved, Cmd: cmd},
		{VoterID: "4", Vote: wire.StatusRejected, Cmd: cmd},
	}
	out := crossVerify(records, reputations(map[string]int{"2": 100, "3": 100, "4": 100}), 50)
	require.False(t, out.InsufficientWitnesses)
	require.True(t, out.Committed)
	require.Equal(t, cmd, out.MajorityCmd)
	require.True(t, out.Malicious["4"])
	require.False(t, out.Malicious["2"])
}

func TestCrossVerify_RejectsBelowThreshold(t *testing.T) {
	cmd := wire.Action{"action": "withdraw", "name": "Alice", "amount": 80.0}
	records := []VoteRecord{
		{VoterID: "2", Vote: wire.StatusRejected, Cmd: cmd},
		{VoterID: "3", Vote: wire.StatusRejected, Cmd: cmd},
		{VoterID: "4", Vote: wire.StatusRejected, Cmd: cmd},
	}
	out := crossVerify(records, reputations(map[string]int{"2": 100, "3": 100, "4": 100}), 50)
	require.False(t, out.Committed)
}

func TestCrossVerify_ExcludesLowReputationVoters(t *testing.T) {
	cmd := wire.Action{"action": "deposit", "name": "Alice", "amount": 10.0}
	records := []VoteRecord{
		{VoterID: "2", Vote: wire.StatusApproved, Cmd: cmd},
		{VoterID: "3", Vote: wire.StatusApproved, Cmd: cmd},
		{VoterID: "4", Vote: wire.StatusApproved, Cmd: cmd},
		{VoterID: "5", Vote: wire.StatusRejected, Cmd: cmd},
	}
	// peer 5 is below the exclusion threshold: dropped before the tally,
	// so total=3 (not 4) and its rejected vote never counts.
	out := crossVerify(records, reputations(map[string]int{"2": 100, "3": 100, "4": 100, "5": 10}), 50)
	require.True(t, out.Committed)
	require.Empty(t, out.Malicious)
}

func TestCrossVerify_TieBreakIsLexicographicCanonicalForm(t *testing.T) {
	cmdA := wire.Action{"action": "deposit", "name": "Alice", "amount": 1.0}
	cmdB := wire.Action{"action": "deposit", "name": "Bob", "amount": 1.0}
	records := []VoteRecord{
		{VoterID: "2", Vote: wire.StatusApproved, Cmd: cmdB},
		{VoterID: "3", Vote: wire.StatusApproved, Cmd: cmdA},
		{VoterID: "4", Vote: wire.StatusApproved, Cmd: cmdB},
		{VoterID: "5", Vote: wire.StatusApproved, Cmd: cmdA},
	}
	out := crossVerify(records, reputations(map[string]int{"2": 100, "3": 100, "4": 100, "5": 100}), 50)
	require.True(t, out.Committed)
	// Both cmdA and cmdB have 2 votes; canonical encoding of cmdA
	// ("Alice") sorts before cmdB ("Bob") lexicographically.
	require.Equal(t, cmdA, out.MajorityCmd)
}
