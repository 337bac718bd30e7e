package cmd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/internal/wire"
)

// fakeOperator is an in-memory nodeOperator standing in for a real peer
// node, so the menu's dialogue can be exercised without real sockets.
type fakeOperator struct {
	balances map[string]float64
}

func newFakeOperator() *fakeOperator {
	return &fakeOperator{balances: make(map[string]float64)}
}

func (f *fakeOperator) Propose(_ context.Context, cmd wire.Action) error {
	name, _ := cmd["name"].(string)
	switch cmd["action"] {
	case "create_account":
		initial, _ := cmd["initial_balance"].(float64)
		f.balances[name] = initial
	case "deposit":
		amount, _ := cmd["amount"].(float64)
		f.balances[name] += amount
	case "withdraw":
		amount, _ := cmd["amount"].(float64)
		if f.balances[name] < amount {
			return fmt.Errorf("insufficient balance")
		}
		f.balances[name] -= amount
	}
	return nil
}

func (f *fakeOperator) Query(name string) (any, error) {
	balance, ok := f.balances[name]
	if !ok {
		return nil, fmt.Errorf("no such account")
	}
	return balance, nil
}

func TestMenuCreateDepositAndCheck(t *testing.T) {
	op := newFakeOperator()
	in := strings.NewReader("1\nAlice\n100\n2\nAlice\n25\n4\nAlice\n5\n")
	var out bytes.Buffer

	cmd := &cobra.Command{Use: "menu"}
	cmd.SetIn(in)
	cmd.SetOut(&out)

	runMenu(context.Background(), cmd, op)

	require.Equal(t, 125.0, op.balances["Alice"])
	require.Contains(t, out.String(), "Balance for Alice: 125")
}

func TestMenuWithdrawInsufficientBalance(t *testing.T) {
	op := newFakeOperator()
	op.balances["Alice"] = 10
	in := strings.NewReader("3\nAlice\n50\n5\n")
	var out bytes.Buffer

	cmd := &cobra.Command{Use: "menu"}
	cmd.SetIn(in)
	cmd.SetOut(&out)

	runMenu(context.Background(), cmd, op)

	require.Equal(t, 10.0, op.balances["Alice"])
	require.Contains(t, out.String(), "Request rejected")
}
