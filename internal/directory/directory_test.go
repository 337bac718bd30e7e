package directory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/internal/directory"
)

func TestReputablePeers_ExcludesBelowThreshold(t *testing.T) {
	tbl := directory.New("1")
	tbl.Put(directory.Entry{PeerID: "1", URL: "http://a", Reputation: 100})
	tbl.Put(directory.Entry{PeerID: "2", URL: "http://b", Reputation: 100})
	tbl.Put(directory.Entry{PeerID: "5", URL: "http://c", Reputation: 40})

	peers := tbl.Peers()
	require.Len(t, peers, 2)

	reputable := tbl.ReputablePeers()
	require.Len(t, reputable, 1)
	_, ok := reputable["2"]
	require.True(t, ok)
}

func TestSetReputation_UnknownIsNoop(t *testing.T) {
	tbl := directory.New("1")
	tbl.SetReputation("nope", 10)
	_, ok := tbl.Get("nope")
	require.False(t, ok)
}

func TestAll_ReturnsSnapshot(t *testing.T) {
	tbl := directory.New("1")
	tbl.Put(directory.Entry{PeerID: "1", Reputation: 100})
	snap := tbl.All()
	tbl.Put(directory.Entry{PeerID: "2", Reputation: 100})
	require.Len(t, snap, 1, "snapshot must not observe later writes")
	require.Len(t, tbl.All(), 2)
}
