package peer_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/ledger/bank"
	"github.com/bftbank/core/peer"
	"github.com/bftbank/core/registry"
)

// startCluster brings up a real registry HTTP server and n real peer
// nodes over loopback TCP sockets, wired exactly as a deployed cluster
// would be (registry round trip, directory push, four listeners per
// peer), and returns them once every node has joined.
func startCluster(t *testing.T, n int, basePort int) ([]*peer.Node, context.CancelFunc) {
	t.Helper()

	regSrv := registry.NewServer(nil)
	httpSrv := httptest.NewServer(regSrv.Handler())
	t.Cleanup(httpSrv.Close)

	ctx, cancel := context.WithCancel(context.Background())

	nodes := make([]*peer.Node, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d", i+1)
		addr := fmt.Sprintf("127.0.0.1:%d", basePort+i*10)
		conf, err := peer.NewNodeConf(id, addr, httpSrv.URL, bank.New(), bank.NewState(),
			peer.WithVerifyWindow(30*time.Millisecond), peer.WithLearnWindow(30*time.Millisecond))
		require.NoError(t, err)
		node, err := peer.NewNode(conf)
		require.NoError(t, err)
		nodes[i] = node
	}

	for _, node := range nodes {
		go func(n *peer.Node) {
			_ = n.Run(ctx)
		}(node)
	}

	// Give every node's join sequence (register, pull, push) time to settle
	// before tests start proposing rounds.
	time.Sleep(200 * time.Millisecond)

	return nodes, cancel
}

func TestNodeClusterProposeAndQuery(t *testing.T) {
	nodes, cancel := startCluster(t, 3, 17000)
	defer cancel()
	ctx := context.Background()

	err := nodes[0].Propose(ctx, map[string]any{
		"action": "create_account", "name": "Alice", "initial_balance": 100.0,
	})
	require.NoError(t, err)

	for _, node := range nodes {
		balance, err := node.Query("Alice")
		require.NoError(t, err)
		require.Equal(t, 100.0, balance)
	}

	err = nodes[1].Propose(ctx, map[string]any{
		"action": "deposit", "name": "Alice", "amount": 25.0,
	})
	require.NoError(t, err)

	for _, node := range nodes {
		balance, err := node.Query("Alice")
		require.NoError(t, err)
		require.Equal(t, 125.0, balance)
	}
}

func TestNodeConfRejectsMissingFields(t *testing.T) {
	_, err := peer.NewNodeConf("", "127.0.0.1:18000", "http://127.0.0.1:9999", bank.New(), bank.NewState())
	require.Error(t, err)

	_, err = peer.NewNodeConf("1", "not-an-address", "http://127.0.0.1:9999", bank.New(), bank.NewState())
	require.Error(t, err)

	_, err = peer.NewNodeConf("1", "127.0.0.1:18000", "", bank.New(), bank.NewState())
	require.Error(t, err)
}
