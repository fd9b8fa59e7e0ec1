package refund

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/fixedpoint"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/merkle"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence/memory"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/types"
)

// fakeClock is a settable time source for crossing the deadline in tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// testCommitment is the concrete scenario from the allocation table
// {A: 1.0, B: 2.5, C: 0.35, D: 0.002} at scale 18.
var testAllocations = []struct {
	addr   string
	amount string
}{
	{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "1.0"},
	{"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "2.5"},
	{"0xcccccccccccccccccccccccccccccccccccccccc", "0.35"},
	{"0xdddddddddddddddddddddddddddddddddddddddd", "0.002"},
}

type fixture struct {
	contract *Contract
	clock    *fakeClock
	store    *memory.MemoryStore

	ents   []*types.Entitlement
	proofs map[common.Address][][32]byte
	total  *uint256.Int
}

// newFixture builds the test commitment, funds the contract with the total
// committed amount, and returns per-address proofs.
func newFixture(t *testing.T, transferor Transferor, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		clock:  newFakeClock(),
		store:  memory.NewMemoryStore(),
		proofs: make(map[common.Address][][32]byte),
		total:  uint256.NewInt(0),
	}

	leaves := make([][32]byte, 0, len(testAllocations))
	for _, alloc := range testAllocations {
		amount, err := fixedpoint.ParseDecimal(alloc.amount, 18)
		require.NoError(t, err)

		ent := &types.Entitlement{Address: common.HexToAddress(alloc.addr), Amount: amount}
		f.ents = append(f.ents, ent)
		f.total.Add(f.total, amount)
		leaves = append(leaves, merkle.LeafHash(ent))
	}

	tree, err := merkle.BuildTree(leaves)
	require.NoError(t, err)

	for _, ent := range f.ents {
		proof, err := tree.GenerateProof(merkle.LeafHash(ent))
		require.NoError(t, err)
		f.proofs[ent.Address] = proof.Siblings
	}

	if transferor == nil {
		transferor = TransferFunc(func(common.Address, *uint256.Int) error { return nil })
	}

	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.contract, err = New(common.Hash(tree.Root), owner(), f.store, transferor, opts...)
	require.NoError(t, err)

	require.NoError(t, f.contract.Fund(f.total.Clone()))

	return f
}

func owner() common.Address {
	return common.HexToAddress("0x0000000000000000000000000000000000000aaa")
}

func TestNewRejectsEmptyRoot(t *testing.T) {
	store := memory.NewMemoryStore()
	transferor := TransferFunc(func(common.Address, *uint256.Int) error { return nil })

	contract, err := New(common.Hash{}, owner(), store, transferor)
	require.Error(t, err)
	require.Nil(t, contract)
	require.ErrorIs(t, err, ErrEmptyRoot)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestDeadlineFromClaimWindow(t *testing.T) {
	f := newFixture(t, nil, WithClaimWindow(10*time.Minute))

	created := f.clock.Now().Unix()
	assert.Equal(t, created+600, f.contract.Deadline())
	assert.True(t, f.contract.Active())

	f.clock.Advance(10*time.Minute + time.Second)
	assert.False(t, f.contract.Active())
}

func TestClaimLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ent := f.ents[0]

	t.Run("First claim succeeds", func(t *testing.T) {
		err := f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address])
		require.NoError(t, err)

		claimed, err := f.contract.IsClaimed(ent.Address)
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("Second identical claim conflicts", func(t *testing.T) {
		err := f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address])
		require.ErrorIs(t, err, ErrAlreadyClaimed)
		assert.Equal(t, KindStateConflict, KindOf(err))
	})

	t.Run("Claim after deadline rejects regardless of proof", func(t *testing.T) {
		f.clock.Advance(DefaultClaimWindow + time.Hour)

		other := f.ents[1]
		err := f.contract.ClaimRefund(other.Address, other.Amount, f.proofs[other.Address])
		require.ErrorIs(t, err, ErrPeriodOver)
		assert.Equal(t, KindTemporalViolation, KindOf(err))
	})
}

func TestClaimAtDeadlineBoundary(t *testing.T) {
	f := newFixture(t, nil)
	ent := f.ents[0]

	// Current time == deadline: period still active
	f.clock.Advance(DefaultClaimWindow)
	require.Equal(t, f.clock.Now().Unix(), f.contract.Deadline())
	require.NoError(t, f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address]))

	// One second past: over
	f.clock.Advance(time.Second)
	other := f.ents[1]
	err := f.contract.ClaimRefund(other.Address, other.Amount, f.proofs[other.Address])
	require.ErrorIs(t, err, ErrPeriodOver)
}

func TestClaimProofMismatch(t *testing.T) {
	f := newFixture(t, nil)
	a, b := f.ents[0], f.ents[1]

	t.Run("Wrong amount", func(t *testing.T) {
		wrong := new(uint256.Int).Add(a.Amount, uint256.NewInt(1))
		err := f.contract.ClaimRefund(a.Address, wrong, f.proofs[a.Address])
		require.ErrorIs(t, err, ErrInvalidProof)
		assert.Equal(t, KindProofMismatch, KindOf(err))
	})

	t.Run("Another address's proof", func(t *testing.T) {
		err := f.contract.ClaimRefund(b.Address, b.Amount, f.proofs[a.Address])
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("Uncommitted address", func(t *testing.T) {
		outsider := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
		err := f.contract.ClaimRefund(outsider, a.Amount, f.proofs[a.Address])
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("Tampered sibling", func(t *testing.T) {
		proof := make([][32]byte, len(f.proofs[a.Address]))
		copy(proof, f.proofs[a.Address])
		require.NotEmpty(t, proof)
		proof[0][0] ^= 0xFF

		err := f.contract.ClaimRefund(a.Address, a.Amount, proof)
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("Failed claim leaves no record", func(t *testing.T) {
		claimed, err := f.contract.IsClaimed(a.Address)
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestWithdrawBoundary(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("Non-owner rejected", func(t *testing.T) {
		err := f.contract.Withdraw(f.ents[0].Address, uint256.NewInt(1))
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, KindUnauthorized, KindOf(err))
	})

	t.Run("Deadline minus one second rejected", func(t *testing.T) {
		f.clock.Advance(DefaultClaimWindow - time.Second)
		err := f.contract.Withdraw(owner(), uint256.NewInt(1))
		require.ErrorIs(t, err, ErrPeriodNotOver)
		assert.Equal(t, KindTemporalViolation, KindOf(err))
	})

	t.Run("Deadline plus one second succeeds", func(t *testing.T) {
		f.clock.Advance(2 * time.Second)
		require.NoError(t, f.contract.Withdraw(owner(), uint256.NewInt(1)))
	})

	t.Run("Amount above balance exhausts", func(t *testing.T) {
		over := new(uint256.Int).Add(f.contract.Balance(), uint256.NewInt(1))
		err := f.contract.Withdraw(owner(), over)
		require.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, KindResourceExhausted, KindOf(err))
	})
}

func TestTransferFailureKeepsClaimRecord(t *testing.T) {
	failing := TransferFunc(func(common.Address, *uint256.Int) error {
		return fmt.Errorf("gas forwarding limit exceeded")
	})
	f := newFixture(t, failing)
	ent := f.ents[0]

	balanceBefore := f.contract.Balance()

	err := f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address])
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, KindTransferFailure, KindOf(err))

	// The funds never left
	assert.Equal(t, balanceBefore, f.contract.Balance())

	// But the claim record stays true: the documented fund-lock. A retry
	// conflicts instead of paying out.
	claimed, err := f.contract.IsClaimed(ent.Address)
	require.NoError(t, err)
	assert.True(t, claimed)

	err = f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address])
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// No event for the failed claim
	assert.Empty(t, f.contract.Events())
}

func TestReentrantClaimRejected(t *testing.T) {
	var f *fixture
	var nestedErr error
	var nestedClaimed bool

	// A malicious recipient that calls back into the contract during the
	// transfer step of its own claim
	reentrant := TransferFunc(func(to common.Address, amount *uint256.Int) error {
		nestedErr = f.contract.ClaimRefund(to, amount, f.proofs[to])
		nestedClaimed, _ = f.contract.IsClaimed(to)
		return nil
	})

	f = newFixture(t, reentrant)
	ent := f.ents[0]

	require.NoError(t, f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address]))

	// The nested call was rejected by the single-entry guard, and it ran
	// against state where the claim was already recorded
	require.ErrorIs(t, nestedErr, ErrReentrantCall)
	assert.Equal(t, KindStateConflict, KindOf(nestedErr))
	assert.True(t, nestedClaimed)

	// Paid exactly once
	expected := new(uint256.Int).Sub(f.total, ent.Amount)
	assert.Equal(t, expected, f.contract.Balance())
}

func TestConcreteScenario(t *testing.T) {
	f := newFixture(t, nil)

	// Every committed address claims its exact scaled amount once
	for _, ent := range f.ents {
		require.NoError(t, f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address]))
	}

	// Total claimed equals the sum of the four amounts: 3.852 units
	expectedTotal, err := fixedpoint.ParseDecimal("3.852", 18)
	require.NoError(t, err)
	require.Equal(t, expectedTotal, f.total)
	assert.True(t, f.contract.Balance().IsZero())

	// Owner tops the contract up, then withdraws the residue post-deadline
	residue, err := fixedpoint.ParseDecimal("0.5", 18)
	require.NoError(t, err)
	require.NoError(t, f.contract.Fund(residue.Clone()))

	f.clock.Advance(DefaultClaimWindow + time.Second)

	part, err := fixedpoint.ParseDecimal("0.2", 18)
	require.NoError(t, err)
	require.NoError(t, f.contract.Withdraw(owner(), part))

	remaining := new(uint256.Int).Sub(residue, part)
	assert.Equal(t, remaining, f.contract.Balance())

	require.NoError(t, f.contract.Withdraw(owner(), remaining.Clone()))
	assert.True(t, f.contract.Balance().IsZero())

	// Event log: four Refunded then two Withdrawn, in order
	events := f.contract.Events()
	require.Len(t, events, 6)
	for i := 0; i < 4; i++ {
		assert.Equal(t, EventRefunded, events[i].Kind)
	}
	assert.Equal(t, EventWithdrawn, events[4].Kind)
	assert.Equal(t, owner(), events[4].Address)
	assert.Equal(t, EventWithdrawn, events[5].Kind)
}

func TestFundIsUnconditional(t *testing.T) {
	f := newFixture(t, nil)

	// Funding works even after the deadline
	f.clock.Advance(DefaultClaimWindow + time.Hour)

	before := f.contract.Balance()
	require.NoError(t, f.contract.Fund(uint256.NewInt(42)))
	assert.Equal(t, new(uint256.Int).Add(before, uint256.NewInt(42)), f.contract.Balance())
}

func TestLoadRestoresLedger(t *testing.T) {
	f := newFixture(t, nil)
	ent := f.ents[0]
	require.NoError(t, f.contract.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address]))

	// Restart: rebuild the contract from the same store
	transferor := TransferFunc(func(common.Address, *uint256.Int) error { return nil })
	restored, err := Load(f.store, transferor, WithClock(f.clock))
	require.NoError(t, err)
	require.NotNil(t, restored)

	assert.Equal(t, f.contract.Root(), restored.Root())
	assert.Equal(t, f.contract.Owner(), restored.Owner())
	assert.Equal(t, f.contract.Deadline(), restored.Deadline())
	assert.Equal(t, f.contract.Balance(), restored.Balance())

	// The event log survives the restart too
	require.Equal(t, f.contract.Events(), restored.Events())
	events := restored.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventRefunded, events[0].Kind)
	assert.Equal(t, ent.Address, events[0].Address)

	// Claim records survive: double claim still conflicts
	err = restored.ClaimRefund(ent.Address, ent.Amount, f.proofs[ent.Address])
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// And an unclaimed address can still claim through the restored ledger
	other := f.ents[1]
	require.NoError(t, restored.ClaimRefund(other.Address, other.Amount, f.proofs[other.Address]))
}

func TestLoadKeepsPersistedDeadline(t *testing.T) {
	f := newFixture(t, nil, WithClaimWindow(10*time.Minute))
	original := f.contract.Deadline()

	// A claim window passed at restore time must not move the deadline
	transferor := TransferFunc(func(common.Address, *uint256.Int) error { return nil })
	restored, err := Load(f.store, transferor, WithClock(f.clock), WithClaimWindow(24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, restored)

	assert.Equal(t, original, restored.Deadline())

	f.clock.Advance(10*time.Minute + time.Second)
	assert.False(t, restored.Active())
}

func TestLoadEmptyStore(t *testing.T) {
	store := memory.NewMemoryStore()
	transferor := TransferFunc(func(common.Address, *uint256.Int) error { return nil })

	restored, err := Load(store, transferor)
	require.NoError(t, err)
	assert.Nil(t, restored)
}
