package wire_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/internal/wire"
)

func TestDialSend_RoundTrip(t *testing.T) {
	ln, err := wire.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan wire.Prepare, 1)
	go ln.Serve(ctx, func(_ context.Context, raw json.RawMessage) (any, error) {
		var p wire.Prepare
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		received <- p
		return wire.PrepareReply{Status: wire.StatusPromise, ProposalNumber: p.ProposalNumber}, nil
	}, nil)

	var reply wire.PrepareReply
	err = wire.Dial(context.Background(), ln.Addr().String(), wire.Prepare{Type: wire.TypePrepare, ProposalNumber: 7}, &reply)
	require.NoError(t, err)
	require.Equal(t, wire.StatusPromise, reply.Status)
	require.Equal(t, uint64(7), reply.ProposalNumber)

	select {
	case p := <-received:
		require.Equal(t, uint64(7), p.ProposalNumber)
	case <-time.After(time.Second):
		t.Fatal("handler never received message")
	}
}

func TestDial_UnreachablePeer(t *testing.T) {
	err := wire.Send(context.Background(), "127.0.0.1:1", wire.Prepare{Type: wire.TypePrepare, ProposalNumber: 1})
	require.ErrorIs(t, err, wire.ErrUnreachable)
}

func TestListener_SlowConnectionDoesNotStallOthers(t *testing.T) {
	ln, err := wire.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	go ln.Serve(ctx, func(_ context.Context, raw json.RawMessage) (any, error) {
		var p wire.Prepare
		_ = json.Unmarshal(raw, &p)
		if p.ProposalNumber == 1 {
			<-gate // block the first connection's handler
		}
		return wire.PrepareReply{Status: wire.StatusPromise, ProposalNumber: p.ProposalNumber}, nil
	}, nil)

	done := make(chan struct{})
	go func() {
		var reply wire.PrepareReply
		_ = wire.Dial(context.Background(), ln.Addr().String(), wire.Prepare{Type: wire.TypePrepare, ProposalNumber: 1}, &reply)
		close(done)
	}()

	var reply wire.PrepareReply
	err = wire.Dial(context.Background(), ln.Addr().String(), wire.Prepare{Type: wire.TypePrepare, ProposalNumber: 2}, &reply)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reply.ProposalNumber)

	close(gate)
	<-done
}
