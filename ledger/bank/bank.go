// Package bank implements ledger.Machine over a named-account balance
// table, generalizing the fungible-token UTXO model of the teacher's
// money partition into a single shared account namespace replicated by
// consensus rather than by a UTXO bill set.
package bank

import (
	"fmt"
	"sync"

	"github.com/bftbank/core/internal/canon"
	"github.com/bftbank/core/internal/wire"
	"github.com/bftbank/core/ledger"
)

const (
	ActionCreateAccount = "create_account"
	ActionDeposit       = "deposit"
	ActionWithdraw      = "withdraw"
)

// Account is one named ledger entry.
type Account struct {
	Name    string
	Balance float64
}

// State is the in-memory accounts table a peer holds. It implements
// ledger.State and guards its table with its own RWMutex, so Machine's
// reads and writes and direct Balance/Snapshot reads are safe to call
// concurrently.
type State struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewState builds an empty accounts table.
func NewState() *State {
	return &State{accounts: make(map[string]*Account)}
}

func (s *State) get(name string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[name]
	return a, ok
}

// Balance returns name's balance and whether the account exists.
func (s *State) Balance(name string) (float64, bool) {
	a, ok := s.get(name)
	if !ok {
		return 0, false
	}
	return a.Balance, true
}

// Snapshot returns a copy of every account, for diagnostics and tests.
func (s *State) Snapshot() map[string]Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Account, len(s.accounts))
	for name, a := range s.accounts {
		out[name] = *a
	}
	return out
}

// Machine is the bank's ledger.Machine implementation.
type Machine struct{}

// New builds a bank Machine. The Machine itself is stateless; all mutable
// state lives in the State passed to each call.
func New() *Machine {
	return &Machine{}
}

func asState(state ledger.State) (*State, error) {
	s, ok := state.(*State)
	if !ok {
		return nil, fmt.Errorf("bank: unexpected state type %T", state)
	}
	return s, nil
}

func parseCommand(cmd wire.Action) (action, name string, amount, initial float64, err error) {
	a, ok := cmd["action"].(string)
	if !ok {
		return "", "", 0, 0, fmt.Errorf("bank: command missing %q field", "action")
	}
	n, ok := cmd["name"].(string)
	if !ok || n == "" {
		return "", "", 0, 0, fmt.Errorf("bank: command missing %q field", "name")
	}
	switch a {
	case ActionCreateAccount:
		initial, _ = cmd["initial_balance"].(float64)
	case ActionDeposit, ActionWithdraw:
		amt, ok := cmd["amount"].(float64)
		if !ok {
			return "", "", 0, 0, fmt.Errorf("bank: command missing %q field", "amount")
		}
		amount = amt
	default:
		return "", "", 0, 0, fmt.Errorf("bank: unknown action %q", a)
	}
	return a, n, amount, initial, nil
}

// Validate judges cmd against state per spec §4.8: create_account is
// always approved; deposit requires the account to exist; withdraw
// additionally requires sufficient balance.
func (m *Machine) Validate(cmd wire.Action, state ledger.State) (ledger.Vote, error) {
	s, err := asState(state)
	if err != nil {
		return ledger.Rejected, err
	}
	action, name, amount, _, err := parseCommand(cmd)
	if err != nil {
		return ledger.Rejected, err
	}

	switch action {
	case ActionCreateAccount:
		return ledger.Approved, nil
	case ActionDeposit:
		if _, ok := s.get(name); !ok {
			return ledger.Rejected, nil
		}
		return ledger.Approved, nil
	case ActionWithdraw:
		acc, ok := s.get(name)
		if !ok || acc.Balance < amount {
			return ledger.Rejected, nil
		}
		return ledger.Approved, nil
	default:
		return ledger.Rejected, fmt.Errorf("bank: unknown action %q", action)
	}
}

// Apply performs cmd against state. The caller is responsible for ensuring
// Apply runs at most once per fingerprint.
func (m *Machine) Apply(cmd wire.Action, state ledger.State) error {
	s, err := asState(state)
	if err != nil {
		return err
	}
	action, name, amount, initial, err := parseCommand(cmd)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch action {
	case ActionCreateAccount:
		if existing, ok := s.accounts[name]; ok {
			existing.Balance = initial
			return nil
		}
		s.accounts[name] = &Account{Name: name, Balance: initial}
	case ActionDeposit:
		acc, ok := s.accounts[name]
		if !ok {
			return fmt.Errorf("bank: apply deposit: account %q does not exist", name)
		}
		acc.Balance += amount
	case ActionWithdraw:
		acc, ok := s.accounts[name]
		if !ok {
			return fmt.Errorf("bank: apply withdraw: account %q does not exist", name)
		}
		if acc.Balance < amount {
			return fmt.Errorf("bank: apply withdraw: account %q has insufficient balance", name)
		}
		acc.Balance -= amount
	default:
		return fmt.Errorf("bank: unknown action %q", action)
	}
	return nil
}

// Query performs a local, consensus-free read. The only defined query is
// "balance", keyed by account name.
func (m *Machine) Query(name string, state ledger.State) (any, error) {
	s, err := asState(state)
	if err != nil {
		return nil, err
	}
	balance, ok := s.Balance(name)
	if !ok {
		return nil, fmt.Errorf("bank: query: account %q does not exist", name)
	}
	return balance, nil
}

// Fingerprint returns the canonical-form hash of cmd, used as the
// executed-set dedup key (spec §4.8/§7 DuplicateApply).
func (m *Machine) Fingerprint(cmd wire.Action) (canon.Fingerprint, error) {
	return canon.Hash(cmd)
}

var _ ledger.Machine = (*Machine)(nil)
