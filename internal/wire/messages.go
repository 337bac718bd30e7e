// Package wire defines the JSON message envelopes exchanged between peers
// (spec §6) and the one-message-per-connection TCP transport that carries
// them.
package wire

import "errors"

// Action is a client command payload: an opaque byte-string to the
// consensus core, but always a JSON object with at least an "action" key
// in practice (create_account / deposit / withdraw).
type Action map[string]any

// Prepare is phase 1 of the protocol: a proposer reserving a proposal
// number across the cluster. ProposerID breaks ties between proposers
// that happen to pick the same local counter value — the source's bare
// counter let two proposers collide on n; ordering is now the pair
// (ProposalNumber, ProposerID) lexicographically.
type Prepare struct {
	Type           string `json:"type"`
	ProposalNumber uint64 `json:"proposal_number"`
	ProposerID     string `json:"proposer_id"`
}

// PrepareReply is an acceptor's answer to Prepare.
type PrepareReply struct {
	Status         string `json:"status"` // "promise" | "reject"
	ProposalNumber uint64 `json:"proposal_number"`
}

// Propose is phase 2: the proposer distributing (n, cmd) to every acceptor.
type Propose struct {
	Type           string `json:"type"`
	ProposalNumber uint64 `json:"proposal_number"`
	Action         Action `json:"action"`
	ProposerID     string `json:"proposer_id"`
}

// Verify is the cross-verification broadcast: every acceptor tells every
// other acceptor (never the proposer) how it voted.
type Verify struct {
	Type           string `json:"type"`
	ProposalNumber uint64 `json:"proposal_number"`
	Status         string `json:"status"` // "approved" | "rejected"
	Action         Action `json:"action"`
	NodeID         string `json:"node_id"`
	ProposerID     string `json:"proposer_id"`
}

// Learn is the final message: an acceptor reporting the cross-verified
// outcome back to the proposer.
type Learn struct {
	Type           string   `json:"type"`
	ProposalNumber uint64   `json:"proposal_number"`
	Action         Action   `json:"action"`
	NodeID         string   `json:"node_id"`
	MaliciousNodes []string `json:"malicious_nodes"`
}

// DirectoryPush is the one-line registration record a newly joined peer
// pushes to every existing peer's directory port.
type DirectoryPush map[string]DirectoryEntry

type DirectoryEntry struct {
	URL        string `json:"url"`
	Reputation int    `json:"reputation"`
}

// DirectoryAck is the response to a DirectoryPush.
type DirectoryAck struct {
	Status  string `json:"status"` // "success" | "error"
	Message string `json:"message"`
}

const (
	StatusPromise  = "promise"
	StatusReject   = "reject"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	TypePrepare = "prepare"
	TypePropose = "propose"
	TypeVerify  = "verify"
	TypeLearn   = "learn"
)

var (
	// ErrUnreachable is returned when a peer refuses a connection or a
	// send/receive deadline expires; the caller treats it as "rejected"
	// only once its own timeout elapses (spec §4.1/§7).
	ErrUnreachable = errors.New("wire: peer unreachable")
	// ErrMalformed marks a decode failure or a message missing a
	// required field; the receiving peer drops the message and logs it.
	ErrMalformed = errors.New("wire: malformed message")
)
