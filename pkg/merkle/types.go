package merkle

// Tree represents a binary merkle tree committing to a set of refund leaves.
// The tree uses keccak256 hashing with sorted sibling pairs for Solidity
// compatibility.
type Tree struct {
	// Leaves contains the deduplicated leaf hashes in sorted order
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte
}

// Proof represents a proof that a leaf is included in the tree.
// Because sibling pairs are hashed in sorted order, the proof carries no
// left/right position flags - only the sibling hashes from leaf to root.
// At a level where the node was promoted unpaired, no sibling is recorded.
type Proof struct {
	// Leaf is the hash of the leaf being proven
	Leaf [32]byte

	// Siblings contains the sibling hashes from leaf to root.
	// Siblings[0] is the sibling of the leaf, Siblings[len-1] is near the root.
	Siblings [][32]byte
}
