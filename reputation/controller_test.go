package reputation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/internal/directory"
	"github.com/bftbank/core/reputation"
)

type fakeRegistry struct {
	reps map[string]int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{reps: map[string]int{}}
}

func (f *fakeRegistry) IncreaseReputation(_ context.Context, nodeID string, amount *int) (int, error) {
	step := reputation.IncreaseStep
	if amount != nil {
		step = *amount
	}
	f.reps[nodeID] += step
	if f.reps[nodeID] > 100 {
		f.reps[nodeID] = 100
	}
	return f.reps[nodeID], nil
}

func (f *fakeRegistry) DecreaseReputation(_ context.Context, nodeID string, amount *int) (int, error) {
	step := reputation.DecreaseStep
	if amount != nil {
		step = *amount
	}
	f.reps[nodeID] -= step
	if f.reps[nodeID] < 0 {
		f.reps[nodeID] = 0
	}
	return f.reps[nodeID], nil
}

func TestAgree_IncreasesAndWritesThroughDirectory(t *testing.T) {
	dir := directory.New("self")
	dir.Put(directory.Entry{PeerID: "2", Reputation: 90})
	reg := newFakeRegistry()
	reg.reps["2"] = 90
	ctrl := reputation.New(dir, reg, nil)

	ctrl.Agree(context.Background(), "2")

	entry, ok := dir.Get("2")
	require.True(t, ok)
	require.Equal(t, 100, entry.Reputation)
}

func TestDisagree_DecreasesBelowExclusionThreshold(t *testing.T) {
	dir := directory.New("self")
	dir.Put(directory.Entry{PeerID: "4", Reputation: 60})
	reg := newFakeRegistry()
	reg.reps["4"] = 60
	ctrl := reputation.New(dir, reg, nil)

	ctrl.Disagree(context.Background(), "4")

	entry, ok := dir.Get("4")
	require.True(t, ok)
	require.Equal(t, 40, entry.Reputation)
	require.False(t, entry.Reputable())
}

func TestSettleRound_AppliesEveryOutcome(t *testing.T) {
	dir := directory.New("self")
	dir.Put(directory.Entry{PeerID: "1", Reputation: 100})
	dir.Put(directory.Entry{PeerID: "4", Reputation: 80})
	reg := newFakeRegistry()
	reg.reps["1"] = 100
	reg.reps["4"] = 80
	ctrl := reputation.New(dir, reg, nil)

	err := ctrl.SettleRound(context.Background(), map[string]bool{
		"1": true,
		"4": false,
	})
	require.NoError(t, err)

	e1, _ := dir.Get("1")
	require.Equal(t, 100, e1.Reputation)
	e4, _ := dir.Get("4")
	require.Equal(t, 60, e4.Reputation)
}
