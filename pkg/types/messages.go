package types

// Wire types for the refund server's HTTP boundary. Amounts cross the wire
// as decimal strings in the smallest native unit; proofs as ordered hex
// hashes, exactly as the commitment builder emits them.

// ClaimRequest asks the ledger to pay out the caller's committed refund.
// The address stands in for the ledger's native caller identity - the
// server simulates the ledger environment and does not authenticate it.
type ClaimRequest struct {
	Address string   `json:"address"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof"`
}

// WithdrawRequest asks the ledger to pay residual funds to the owner.
type WithdrawRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// FundRequest credits the ledger balance.
type FundRequest struct {
	Amount string `json:"amount"`
}

// StatusResponse exposes the queryable ledger state.
type StatusResponse struct {
	Root     string `json:"root"`
	Owner    string `json:"owner"`
	Deadline int64  `json:"deadline"`
	Active   bool   `json:"active"`
	Balance  string `json:"balance"`
}

// ClaimedResponse reports one address's claim flag.
type ClaimedResponse struct {
	Address string `json:"address"`
	Claimed bool   `json:"claimed"`
}

// EventRecord is one entry of the ledger's event log, wire form.
type EventRecord struct {
	Kind      string `json:"kind"`
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse carries a rejection and its taxonomy kind.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
