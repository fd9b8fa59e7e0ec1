package refund

import "github.com/pkg/errors"

// Sentinel errors for every way a ledger operation can reject. All failures
// are synchronous, atomic rejections: no partial state change, with the one
// documented exception of a transfer failing after the claim flag commits.
var (
	// ErrEmptyRoot rejects creation with the all-zero root.
	ErrEmptyRoot = errors.New("merkle root cannot be the zero hash")

	// ErrInvalidAmount rejects a nil or missing amount.
	ErrInvalidAmount = errors.New("amount must be provided")

	// ErrUnauthorized rejects a withdraw from anyone but the owner.
	ErrUnauthorized = errors.New("caller is not the owner")

	// ErrPeriodOver rejects a claim after the refund deadline.
	ErrPeriodOver = errors.New("refund period is over")

	// ErrPeriodNotOver rejects a withdraw while claims are still open.
	ErrPeriodNotOver = errors.New("refund period is not over")

	// ErrAlreadyClaimed rejects a second claim for the same address.
	ErrAlreadyClaimed = errors.New("refund already claimed")

	// ErrReentrantCall rejects a nested call arriving while an operation
	// is still in flight (the single-entry guard).
	ErrReentrantCall = errors.New("reentrant call rejected")

	// ErrInvalidProof rejects a merkle proof that does not recompute the
	// committed root for the caller's leaf.
	ErrInvalidProof = errors.New("invalid merkle proof")

	// ErrInsufficientFunds rejects a withdraw exceeding the balance.
	ErrInsufficientFunds = errors.New("insufficient contract balance")

	// ErrTransferFailed reports that the external payment call failed.
	// On a claim this fires AFTER the claim flag commits; the flag is not
	// rolled back (see the fund-lock note on ClaimRefund).
	ErrTransferFailed = errors.New("transfer failed")
)

// Kind groups the sentinel errors into the ledger's failure taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindTemporalViolation
	KindStateConflict
	KindProofMismatch
	KindResourceExhausted
	KindTransferFailure
)

// String returns the taxonomy name for a Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindUnauthorized:
		return "Unauthorized"
	case KindTemporalViolation:
		return "TemporalViolation"
	case KindStateConflict:
		return "StateConflict"
	case KindProofMismatch:
		return "ProofMismatch"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindTransferFailure:
		return "TransferFailure"
	default:
		return "Unknown"
	}
}

// KindOf classifies an error returned by a ledger operation, unwrapping any
// context added along the way.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrEmptyRoot), errors.Is(err, ErrInvalidAmount):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrPeriodOver), errors.Is(err, ErrPeriodNotOver):
		return KindTemporalViolation
	case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrReentrantCall):
		return KindStateConflict
	case errors.Is(err, ErrInvalidProof):
		return KindProofMismatch
	case errors.Is(err, ErrInsufficientFunds):
		return KindResourceExhausted
	case errors.Is(err, ErrTransferFailed):
		return KindTransferFailure
	default:
		return KindUnknown
	}
}
