// Package distributor is the off-chain commitment builder: it turns a
// human-readable investor allocation table into the merkle root baked into
// the refund ledger at creation, plus one inclusion proof per investor.
//
// Building is a pure, single-pass computation with no shared mutable state;
// concurrent invocations need no coordination.
package distributor

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/fixedpoint"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/merkle"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/types"
)

var (
	// ErrInvalidAddress rejects an allocation key that is not a hex address.
	ErrInvalidAddress = errors.New("invalid investor address")

	// ErrDuplicateAddress rejects two allocation entries that resolve to
	// the same address (e.g. the same address in different casings).
	ErrDuplicateAddress = errors.New("duplicate investor address")

	// ErrMalformedProofHash rejects a proof element that is not a 32-byte
	// hex hash.
	ErrMalformedProofHash = errors.New("malformed proof hash")
)

// Commitment is the builder's output: the root to publish and, per investor,
// the proof to hand out. Everything is hex-encoded for the CLI boundary.
type Commitment struct {
	// Root is the merkle root as a 0x-prefixed hex string.
	Root string `json:"root"`

	// Decimals is the fixed-point scale the amounts were parsed at.
	Decimals uint8 `json:"decimals"`

	// Proofs maps each checksummed investor address to its claim material.
	Proofs map[string]*ProofEntry `json:"proofs"`
}

// ProofEntry is one investor's claim material.
type ProofEntry struct {
	// Amount is the scaled amount in the smallest native unit, decimal.
	Amount string `json:"amount"`

	// AmountDecimal is the human-readable amount, for cross-checking
	// against the source table.
	AmountDecimal string `json:"amountDecimal"`

	// Proof is the ordered sibling-hash path, hex-encoded.
	Proof []string `json:"proof"`
}

// BuildCommitment builds the full commitment for an allocation table.
// Keys are hex addresses, values decimal amount strings parsed at the given
// scale. Input order does not matter; the root depends only on the set.
func BuildCommitment(allocations map[string]string, decimals uint8) (*Commitment, error) {
	if len(allocations) == 0 {
		return nil, merkle.ErrEmptyCommitmentSet
	}

	ents := make([]*types.Entitlement, 0, len(allocations))
	seen := make(map[common.Address]bool, len(allocations))

	for addr, amount := range allocations {
		if !common.IsHexAddress(addr) {
			return nil, errors.Wrapf(ErrInvalidAddress, "address %q", addr)
		}

		parsed := common.HexToAddress(addr)
		if seen[parsed] {
			return nil, errors.Wrapf(ErrDuplicateAddress, "address %s", parsed.Hex())
		}
		seen[parsed] = true

		scaled, err := fixedpoint.ParseDecimal(amount, decimals)
		if err != nil {
			return nil, errors.Wrapf(err, "amount for %s", parsed.Hex())
		}

		ents = append(ents, &types.Entitlement{Address: parsed, Amount: scaled})
	}

	ents = types.SortEntitlements(ents)

	leaves := make([][32]byte, len(ents))
	for i, ent := range ents {
		leaves[i] = merkle.LeafHash(ent)
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, err
	}

	commitment := &Commitment{
		Root:     hexutil.Encode(tree.Root[:]),
		Decimals: decimals,
		Proofs:   make(map[string]*ProofEntry, len(ents)),
	}

	for i, ent := range ents {
		proof, err := tree.GenerateProof(leaves[i])
		if err != nil {
			return nil, errors.Wrapf(err, "proof for %s", ent.Address.Hex())
		}

		commitment.Proofs[ent.Address.Hex()] = &ProofEntry{
			Amount:        ent.Amount.Dec(),
			AmountDecimal: fixedpoint.FormatUnits(ent.Amount, decimals),
			Proof:         encodeProof(proof.Siblings),
		}
	}

	return commitment, nil
}

// encodeProof hex-encodes a sibling path.
func encodeProof(siblings [][32]byte) []string {
	out := make([]string, len(siblings))
	for i, sibling := range siblings {
		out[i] = hexutil.Encode(sibling[:])
	}
	return out
}

// DecodeProof parses a hex-encoded sibling path back to hashes. This is the
// inverse of the builder's output encoding, used wherever a claimant hands
// their proof back in.
func DecodeProof(proof []string) ([][32]byte, error) {
	out := make([][32]byte, len(proof))
	for i, element := range proof {
		raw, err := hexutil.Decode(element)
		if err != nil || len(raw) != 32 {
			return nil, errors.Wrapf(ErrMalformedProofHash, "element %d %q", i, element)
		}
		copy(out[i][:], raw)
	}
	return out, nil
}

// DecodeRoot parses a hex-encoded root. The 0x prefix is optional.
func DecodeRoot(root string) (common.Hash, error) {
	if !strings.HasPrefix(root, "0x") {
		root = "0x" + root
	}
	raw, err := hexutil.Decode(root)
	if err != nil || len(raw) != 32 {
		return common.Hash{}, errors.Wrapf(ErrMalformedProofHash, "root %q", root)
	}
	return common.BytesToHash(raw), nil
}
