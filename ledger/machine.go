// Package ledger defines the state-machine adapter interface through
// which consensus delivers committed commands to the external ledger
// (spec §4.8). The replication core only ever sees this interface; it
// never knows it is replicating a bank.
package ledger

import (
	"github.com/bftbank/core/internal/canon"
	"github.com/bftbank/core/internal/wire"
)

// Vote is an acceptor's local judgement of a command's validity.
type Vote string

const (
	Approved Vote = "approved"
	Rejected Vote = "rejected"
)

// Machine is the host-supplied state machine consensus replicates.
// Validate must be pure and deterministic: every honest peer running it
// against the same state must reach the same Vote.
type Machine interface {
	// Validate judges cmd against the current state without mutating it.
	Validate(cmd wire.Action, state State) (Vote, error)
	// Apply performs cmd against state. The caller guarantees idempotence
	// via the executed-set; Apply itself is not required to dedup.
	Apply(cmd wire.Action, state State) error
	// Query performs a local, consensus-free read.
	Query(name string, state State) (any, error)
	// Fingerprint returns cmd's canonical dedup key.
	Fingerprint(cmd wire.Action) (canon.Fingerprint, error)
}

// State is the mutable state a Machine operates on. It is deliberately
// opaque to the consensus core: only the Machine implementation knows its
// concrete shape.
type State any
