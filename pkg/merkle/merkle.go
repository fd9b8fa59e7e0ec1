package merkle

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/types"
)

var (
	// ErrEmptyCommitmentSet is returned when building a tree from zero leaves.
	ErrEmptyCommitmentSet = errors.New("cannot build merkle tree from empty commitment set")

	// ErrLeafNotFound is returned when a proof is requested for a leaf that
	// was not part of the committed set.
	ErrLeafNotFound = errors.New("leaf not found in committed set")
)

// LeafHash computes the keccak256 leaf hash for a refund entitlement.
// The hash matches the Solidity implementation:
// keccak256(abi.encodePacked(address, uint256(amount)))
//
// The encoding order is always (address, amount); swapping it changes the
// hash and breaks verification against the committed root.
func LeafHash(ent *types.Entitlement) [32]byte {
	amount := ent.Amount.Bytes32()

	// Format: address (20 bytes) || amount (32 bytes, big-endian)
	data := make([]byte, 0, 20+32)
	data = append(data, ent.Address.Bytes()...)
	data = append(data, amount[:]...)

	hash := crypto.Keccak256Hash(data)
	return [32]byte(hash)
}

// BuildTree creates a binary merkle tree from leaf hashes.
// Leaves are deduplicated and sorted lexicographically before building, so
// the root is invariant under the input order - two builders fed the same
// allocation table in different orders produce bit-identical roots.
//
// At every level each sibling pair is hashed in sorted order
// (keccak256(min || max)), which is what lets verification work without
// left/right position flags. If a level has an odd number of nodes, the
// last node is promoted unpaired to the next level.
func BuildTree(leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyCommitmentSet
	}

	sorted := sortAndDedupe(leaves)

	// Build tree levels bottom-up
	levels := make([][][32]byte, 0)
	levels = append(levels, sorted)

	currentLevel := sorted
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 < len(currentLevel) {
				nextLevel = append(nextLevel, hashPairSorted(currentLevel[i], currentLevel[i+1]))
			} else {
				// Odd node out: promote unpaired, no extra hashing round
				nextLevel = append(nextLevel, currentLevel[i])
			}
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	// The last level holds only the root; for a single leaf the root is the
	// leaf hash itself.
	root := currentLevel[0]

	return &Tree{
		Leaves: sorted,
		Root:   root,
		levels: levels,
	}, nil
}

// GenerateProof creates a merkle proof for the given leaf hash.
// The proof consists of the sibling hashes along the path from leaf to root;
// levels where the node was promoted unpaired contribute no sibling.
func (t *Tree) GenerateProof(leaf [32]byte) (*Proof, error) {
	index := t.leafIndex(leaf)
	if index < 0 {
		return nil, ErrLeafNotFound
	}

	siblings := make([][32]byte, 0)

	// Traverse from leaf to root, collecting sibling hashes
	for level := 0; level < len(t.levels)-1; level++ {
		currentLevel := t.levels[level]

		var siblingIndex int
		if index%2 == 0 {
			siblingIndex = index + 1
		} else {
			siblingIndex = index - 1
		}

		// A sibling index past the end means the node was promoted
		// unpaired; the verifier sees no step here.
		if siblingIndex < len(currentLevel) {
			siblings = append(siblings, currentLevel[siblingIndex])
		}

		// Move to parent index in next level
		index = index / 2
	}

	return &Proof{
		Leaf:     leaf,
		Siblings: siblings,
	}, nil
}

// VerifyProof checks that a leaf is included in the tree with the given root.
// It folds the leaf through the sibling hashes, sorting each pair before
// hashing, and compares the result against the expected root.
//
// Verification is stateless and repeatable; single-use of a proof is
// enforced by the refund ledger's claim records, not here.
func VerifyProof(leaf [32]byte, siblings [][32]byte, root [32]byte) bool {
	currentHash := leaf

	for _, sibling := range siblings {
		currentHash = hashPairSorted(currentHash, sibling)
	}

	return currentHash == root
}

// leafIndex returns the position of leaf in the sorted leaves, or -1.
func (t *Tree) leafIndex(leaf [32]byte) int {
	i := sort.Search(len(t.Leaves), func(i int) bool {
		return bytes.Compare(t.Leaves[i][:], leaf[:]) >= 0
	})
	if i < len(t.Leaves) && t.Leaves[i] == leaf {
		return i
	}
	return -1
}

// sortAndDedupe returns a sorted copy of leaves with duplicates removed.
// The committed set is a set of hashes, so duplicate leaves collapse.
func sortAndDedupe(leaves [][32]byte) [][32]byte {
	sorted := make([][32]byte, len(leaves))
	copy(sorted, leaves)

	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	out := sorted[:1]
	for _, leaf := range sorted[1:] {
		if leaf != out[len(out)-1] {
			out = append(out, leaf)
		}
	}
	return out
}

// hashPairSorted computes keccak256(min || max) for two 32-byte hashes.
// Sorting the pair before concatenation is the canonicalization rule that
// makes proofs position-free.
func hashPairSorted(a, b [32]byte) [32]byte {
	data := make([]byte, 64)
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(data[0:32], a[:])
		copy(data[32:64], b[:])
	} else {
		copy(data[0:32], b[:])
		copy(data[32:64], a[:])
	}

	hash := crypto.Keccak256Hash(data)
	return [32]byte(hash)
}
