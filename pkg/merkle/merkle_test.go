package merkle

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/types"
)

// createTestEntitlements creates n test entitlements with unique addresses
func createTestEntitlements(n int) []*types.Entitlement {
	ents := make([]*types.Entitlement, n)
	for i := 0; i < n; i++ {
		ents[i] = &types.Entitlement{
			// Start from 1 to avoid the zero address
			Address: common.BigToAddress(uint256.NewInt(uint64(i + 1)).ToBig()),
			Amount:  uint256.NewInt(uint64((i + 1) * 1000)),
		}
	}
	return ents
}

// leavesOf hashes a set of entitlements into leaf hashes
func leavesOf(ents []*types.Entitlement) [][32]byte {
	leaves := make([][32]byte, len(ents))
	for i, ent := range ents {
		leaves[i] = LeafHash(ent)
	}
	return leaves
}

// randomLeaf generates a random 32-byte hash for testing
func randomLeaf() [32]byte {
	var leaf [32]byte
	_, _ = rand.Read(leaf[:]) // Ignore error in test helper
	return leaf
}

// TestBuildTree tests merkle tree construction with various numbers of leaves
func TestBuildTree(t *testing.T) {
	testCases := []struct {
		name      string
		numLeaves int
	}{
		{"Single leaf", 1},
		{"Two leaves", 2},
		{"Three leaves", 3},
		{"Four leaves (power of 2)", 4},
		{"Seven leaves", 7},
		{"Eight leaves (power of 2)", 8},
		{"Fifteen leaves", 15},
		{"Sixteen leaves (power of 2)", 16},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaves := leavesOf(createTestEntitlements(tc.numLeaves))
			tree, err := BuildTree(leaves)
			require.NoError(t, err)
			require.NotNil(t, tree)

			// Verify tree structure
			require.Equal(t, tc.numLeaves, len(tree.Leaves))
			require.NotEqual(t, [32]byte{}, tree.Root)

			// Generate and verify proofs for all leaves
			for _, leaf := range leaves {
				proof, err := tree.GenerateProof(leaf)
				require.NoError(t, err)
				require.NotNil(t, proof)
				require.Equal(t, leaf, proof.Leaf)

				valid := VerifyProof(proof.Leaf, proof.Siblings, tree.Root)
				require.True(t, valid, "Proof for leaf %x should be valid", leaf)
			}
		})
	}
}

// TestBuildTreeEmpty tests that building a tree from zero leaves fails
func TestBuildTreeEmpty(t *testing.T) {
	tree, err := BuildTree(nil)
	require.Error(t, err)
	require.Nil(t, tree)
	require.ErrorIs(t, err, ErrEmptyCommitmentSet)
}

// TestSingleLeafRoot tests that a single-entry commitment has root == leaf
func TestSingleLeafRoot(t *testing.T) {
	leaf := LeafHash(createTestEntitlements(1)[0])

	tree, err := BuildTree([][32]byte{leaf})
	require.NoError(t, err)
	require.Equal(t, leaf, tree.Root)

	// And its proof is empty
	proof, err := tree.GenerateProof(leaf)
	require.NoError(t, err)
	require.Empty(t, proof.Siblings)
	require.True(t, VerifyProof(leaf, proof.Siblings, tree.Root))
}

// TestRootOrderInvariance tests that the root does not depend on leaf input order
func TestRootOrderInvariance(t *testing.T) {
	leaves := leavesOf(createTestEntitlements(9))

	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	rng := mrand.New(mrand.NewPCG(42, 0))
	for i := 0; i < 10; i++ {
		shuffled := make([][32]byte, len(leaves))
		copy(shuffled, leaves)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		shuffledTree, err := BuildTree(shuffled)
		require.NoError(t, err)
		require.Equal(t, tree.Root, shuffledTree.Root)
	}
}

// TestDuplicateLeavesCollapse tests that duplicate leaves are committed once
func TestDuplicateLeavesCollapse(t *testing.T) {
	leaves := leavesOf(createTestEntitlements(4))
	withDupes := append(append([][32]byte{}, leaves...), leaves[0], leaves[2])

	tree, err := BuildTree(withDupes)
	require.NoError(t, err)
	require.Equal(t, 4, len(tree.Leaves))

	plain, err := BuildTree(leaves)
	require.NoError(t, err)
	require.Equal(t, plain.Root, tree.Root)
}

// TestProofVerification tests proof verification with valid and invalid cases
func TestProofVerification(t *testing.T) {
	leaves := leavesOf(createTestEntitlements(4))
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	t.Run("Valid proof", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[0])
		require.NoError(t, err)
		require.True(t, VerifyProof(proof.Leaf, proof.Siblings, tree.Root))
	})

	t.Run("Invalid proof - wrong root", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[0])
		require.NoError(t, err)

		invalidRoot := [32]byte{1, 2, 3, 4, 5}
		require.False(t, VerifyProof(proof.Leaf, proof.Siblings, invalidRoot))
	})

	t.Run("Invalid proof - tampered leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[0])
		require.NoError(t, err)

		proof.Leaf[0] ^= 0xFF
		require.False(t, VerifyProof(proof.Leaf, proof.Siblings, tree.Root))
	})

	t.Run("Invalid proof - tampered sibling", func(t *testing.T) {
		proof, err := tree.GenerateProof(leaves[0])
		require.NoError(t, err)

		require.NotEmpty(t, proof.Siblings)
		proof.Siblings[0][0] ^= 0xFF
		require.False(t, VerifyProof(proof.Leaf, proof.Siblings, tree.Root))
	})

	t.Run("Invalid proof - wrong leaf", func(t *testing.T) {
		// A proof generated for one entitlement must not verify another
		proof, err := tree.GenerateProof(leaves[0])
		require.NoError(t, err)

		require.False(t, VerifyProof(leaves[1], proof.Siblings, tree.Root))
	})
}

// TestGenerateProofUnknownLeaf tests proof generation for an uncommitted leaf
func TestGenerateProofUnknownLeaf(t *testing.T) {
	leaves := leavesOf(createTestEntitlements(4))
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(randomLeaf())
	require.Error(t, err)
	require.Nil(t, proof)
	require.ErrorIs(t, err, ErrLeafNotFound)
}

// TestLeafHash tests entitlement leaf hashing
func TestLeafHash(t *testing.T) {
	ent := &types.Entitlement{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:  uint256.NewInt(1_000_000_000_000_000_000),
	}

	hash1 := LeafHash(ent)
	hash2 := LeafHash(ent)

	// Hashing should be deterministic
	require.Equal(t, hash1, hash2)
	require.NotEqual(t, [32]byte{}, hash1)
}

// TestLeafHashDifferentInputs tests that distinct entitlements produce distinct leaves
func TestLeafHashDifferentInputs(t *testing.T) {
	base := &types.Entitlement{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:  uint256.NewInt(100),
	}
	otherAddr := &types.Entitlement{
		Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:  uint256.NewInt(100),
	}
	otherAmount := &types.Entitlement{
		Address: base.Address,
		Amount:  uint256.NewInt(101),
	}

	require.NotEqual(t, LeafHash(base), LeafHash(otherAddr))
	require.NotEqual(t, LeafHash(base), LeafHash(otherAmount))
}

// TestKnownLeafHash pins the leaf encoding against a precomputed value so the
// (address || amount) packing cannot silently change.
func TestKnownLeafHash(t *testing.T) {
	ent := &types.Entitlement{
		Address: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Amount:  uint256.NewInt(1),
	}

	// keccak256(address padded to 20 bytes || uint256(1) big-endian)
	data := make([]byte, 0, 52)
	data = append(data, ent.Address.Bytes()...)
	amount := ent.Amount.Bytes32()
	data = append(data, amount[:]...)

	require.Equal(t, [32]byte(crypto.Keccak256Hash(data)), LeafHash(ent))
}
