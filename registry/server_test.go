package registry_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/registry"
)

func newTestServer(t *testing.T) (*registry.Client, func()) {
	t.Helper()
	srv := registry.NewServer(nil)
	ts := httptest.NewServer(srv.Handler())
	return registry.NewClient(ts.URL), ts.Close
}

func TestRegister_FirstTimeThenIdempotent(t *testing.T) {
	client, closeFn := newTestServer(t)
	defer closeFn()
	ctx := context.Background()

	res, err := client.Register(ctx, "1", "http://127.0.0.1:10000")
	require.NoError(t, err)
	require.True(t, res.FirstTime)

	res, err = client.Register(ctx, "1", "http://127.0.0.1:10000")
	require.NoError(t, err)
	require.False(t, res.FirstTime)

	_, err = client.Register(ctx, "1", "http://127.0.0.1:9999")
	require.Error(t, err)
}

func TestReputation_ClampedAtBothEnds(t *testing.T) {
	client, closeFn := newTestServer(t)
	defer closeFn()
	ctx := context.Background()

	_, err := client.Register(ctx, "4", "http://127.0.0.1:10004")
	require.NoError(t, err)

	rep, err := client.Reputation(ctx, "4")
	require.NoError(t, err)
	require.Equal(t, 100, rep)

	rep, err = client.IncreaseReputation(ctx, "4", nil)
	require.NoError(t, err)
	require.Equal(t, 100, rep) // clamped

	for i := 0; i < 10; i++ {
		rep, err = client.DecreaseReputation(ctx, "4", nil)
		require.NoError(t, err)
	}
	require.Equal(t, 0, rep) // clamped at zero, never negative
}

func TestDeregister(t *testing.T) {
	client, closeFn := newTestServer(t)
	defer closeFn()
	ctx := context.Background()

	_, err := client.Register(ctx, "2", "http://127.0.0.1:10002")
	require.NoError(t, err)

	err = client.Deregister(ctx, "2")
	require.NoError(t, err)

	_, err = client.Reputation(ctx, "2")
	require.Error(t, err)
}

func TestNodesAndTotalNodes(t *testing.T) {
	client, closeFn := newTestServer(t)
	defer closeFn()
	ctx := context.Background()

	_, err := client.Register(ctx, "1", "http://127.0.0.1:10001")
	require.NoError(t, err)
	_, err = client.Register(ctx, "2", "http://127.0.0.1:10002")
	require.NoError(t, err)

	total, err := client.TotalNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	nodes, err := client.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "http://127.0.0.1:10001", nodes["1"].URL)
}
