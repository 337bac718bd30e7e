package bank_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftbank/core/internal/wire"
	"github.com/bftbank/core/ledger"
	"github.com/bftbank/core/ledger/bank"
)

func createAlice(t *testing.T, m *bank.Machine, s *bank.State, balance float64) {
	t.Helper()
	cmd := wire.Action{"action": "create_account", "name": "Alice", "initial_balance": balance}
	vote, err := m.Validate(cmd, s)
	require.NoError(t, err)
	require.Equal(t, ledger.Approved, vote)
	require.NoError(t, m.Apply(cmd, s))
}

func TestValidate_CreateAccountAlwaysApproved(t *testing.T) {
	m := bank.New()
	s := bank.NewState()
	cmd := wire.Action{"action": "create_account", "name": "Alice", "initial_balance": 100.0}
	vote, err := m.Validate(cmd, s)
	require.NoError(t, err)
	require.Equal(t, ledger.Approved, vote)
}

func TestValidate_DepositRequiresExistingAccount(t *testing.T) {
	m := bank.New()
	s := bank.NewState()
	cmd := wire.Action{"action": "deposit", "name": "Alice", "amount": 10.0}
	vote, err := m.Validate(cmd, s)
	require.NoError(t, err)
	require.Equal(t, ledger.Rejected, vote)

	createAlice(t, m, s, 0)
	vote, err = m.Validate(cmd, s)
	require.NoError(t, err)
	require.Equal(t, ledger.Approved, vote)
}

func TestValidate_WithdrawRequiresSufficientBalance(t *testing.T) {
	m := bank.New()
	s := bank.NewState()
	createAlice(t, m, s, 50.0)

	cmd := wire.Action{"action": "withdraw", "name": "Alice", "amount": 80.0}
	vote, err := m.Validate(cmd, s)
	require.NoError(t, err)
	require.Equal(t, ledger.Rejected, vote)

	cmd = wire.Action{"action": "withdraw", "name": "Alice", "amount": 50.0}
	vote, err = m.Validate(cmd, s)
	require.NoError(t, err)
	require.Equal(t, ledger.Approved, vote)
}

func TestApply_DepositAndWithdrawMutateBalance(t *testing.T) {
	m := bank.New()
	s := bank.NewState()
	createAlice(t, m, s, 100.0)

	require.NoError(t, m.Apply(wire.Action{"action": "deposit", "name": "Alice", "amount": 10.0}, s))
	balance, ok := s.Balance("Alice")
	require.True(t, ok)
	require.Equal(t, 110.0, balance)

	require.NoError(t, m.Apply(wire.Action{"action": "withdraw", "name": "Alice", "amount": 110.0}, s))
	balance, ok = s.Balance("Alice")
	require.True(t, ok)
	require.Equal(t, 0.0, balance)
}

func TestQuery_UnknownAccountErrors(t *testing.T) {
	m := bank.New()
	s := bank.NewState()
	_, err := m.Query("Ghost", s)
	require.Error(t, err)
}

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	m := bank.New()
	a := wire.Action{"action": "deposit", "name": "Alice", "amount": 10.0}
	b := wire.Action{"name": "Alice", "amount": 10.0, "action": "deposit"}

	fa, err := m.Fingerprint(a)
	require.NoError(t, err)
	fb, err := m.Fingerprint(b)
	require.NoError(t, err)
	require.Equal(t, fa, fb)
}
