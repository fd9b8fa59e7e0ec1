package persistence

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ContractState captures the refund ledger's durable state. The root, owner
// and deadline are fixed at creation; the balance moves with funding, claims
// and withdrawals. Persisting it lets a restarted server resume the same
// ledger instead of opening a fresh claim window.
type ContractState struct {
	// Root is the committed merkle root. Never the zero hash.
	Root common.Hash `json:"root"`

	// Owner is the address allowed to withdraw residual funds.
	Owner common.Address `json:"owner"`

	// CreatedAt is the Unix timestamp the ledger was created.
	CreatedAt int64 `json:"createdAt"`

	// Deadline is the Unix timestamp of the claim boundary
	// (CreatedAt + claim window). Immutable after creation.
	Deadline int64 `json:"deadline"`

	// Balance is the native currency held by the ledger, in wei.
	// uint256.Int marshals as a hex quantity string.
	Balance *uint256.Int `json:"balance"`

	// Events is the ordered, append-only event log. Persisted with the
	// rest of the state so a restarted server reports the same history.
	Events []EventRecord `json:"events,omitempty"`
}

// EventRecord is one persisted ledger event.
type EventRecord struct {
	Kind      string         `json:"kind"`
	Address   common.Address `json:"address"`
	Amount    *uint256.Int   `json:"amount"`
	Timestamp int64          `json:"timestamp"`
}
