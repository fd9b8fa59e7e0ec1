package refund

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/merkle"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/types"
)

// DefaultClaimWindow is how long claims stay open after creation.
const DefaultClaimWindow = 90 * 24 * time.Hour

// EventKind names the observable ledger events.
type EventKind string

const (
	EventRefunded  EventKind = "Refunded"
	EventWithdrawn EventKind = "Withdrawn"
)

// Event is one entry in the ledger's ordered, append-only event log.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Address   common.Address `json:"address"`
	Amount    *uint256.Int   `json:"amount"`
	Timestamp int64          `json:"timestamp"`
}

// Contract is the refund ledger state machine. It holds the committed merkle
// root, the claim deadline and the native balance, and verifies claimant
// proofs against the root. There is no ambient singleton: callers hold a
// *Contract and every operation takes the caller identity explicitly.
//
// The root, owner and deadline are immutable after creation. The derived
// Active/Expired state is computed from the clock on every call, never
// stored. The contract persists indefinitely holding residual funds; there
// is no terminal state.
type Contract struct {
	mu      sync.Mutex
	entered bool // single-entry guard, see enter()

	root      common.Hash
	owner     common.Address
	createdAt int64
	deadline  int64
	balance   *uint256.Int

	store      persistence.ClaimStore
	transferor Transferor
	clock      Clock
	logger     *zap.Logger

	claimWindow time.Duration

	events []Event
}

// Option customizes contract construction.
type Option func(*Contract)

// WithClock substitutes the time source. Used by tests to cross the
// deadline without waiting 90 days.
func WithClock(clock Clock) Option {
	return func(c *Contract) { c.clock = clock }
}

// WithClaimWindow overrides the default 90-day claim window. Only New
// consults it: a ledger restored with Load keeps the deadline it was
// created with, so passing this option to Load has no effect.
func WithClaimWindow(window time.Duration) Option {
	return func(c *Contract) { c.claimWindow = window }
}

// WithLogger attaches a logger. Defaults to a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Contract) { c.logger = logger }
}

// New creates a refund ledger committed to the given root. The deadline is
// fixed at creation time plus the claim window; the creator becomes the
// owner. The all-zero root is rejected.
func New(root common.Hash, owner common.Address, store persistence.ClaimStore, transferor Transferor, opts ...Option) (*Contract, error) {
	if root == (common.Hash{}) {
		return nil, ErrEmptyRoot
	}

	c := &Contract{
		root:        root,
		owner:       owner,
		balance:     uint256.NewInt(0),
		store:       store,
		transferor:  transferor,
		clock:       SystemClock,
		logger:      zap.NewNop(),
		claimWindow: DefaultClaimWindow,
	}

	// Options may replace the clock, so apply them before stamping
	// creation time
	for _, opt := range opts {
		opt(c)
	}

	c.createdAt = c.clock.Now().Unix()
	c.deadline = c.createdAt + int64(c.claimWindow/time.Second)

	if err := c.persistState(); err != nil {
		return nil, err
	}

	c.logger.Sugar().Infow("Refund ledger created",
		"root", root.Hex(), "owner", owner.Hex(), "deadline", c.deadline)

	return c, nil
}

// Load restores a ledger from persisted state, preserving the original
// root, owner, deadline and balance; WithClaimWindow cannot reopen or
// shorten a restored claim window. Returns (nil, nil) when the store holds
// no state yet.
func Load(store persistence.ClaimStore, transferor Transferor, opts ...Option) (*Contract, error) {
	state, err := store.LoadContractState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load ledger state")
	}
	if state == nil {
		return nil, nil
	}

	c := &Contract{
		root:       state.Root,
		owner:      state.Owner,
		createdAt:  state.CreatedAt,
		deadline:   state.Deadline,
		balance:    state.Balance.Clone(),
		store:      store,
		transferor: transferor,
		clock:      SystemClock,
		logger:     zap.NewNop(),
	}

	for _, ev := range state.Events {
		c.events = append(c.events, Event{
			Kind:      EventKind(ev.Kind),
			Address:   ev.Address,
			Amount:    ev.Amount.Clone(),
			Timestamp: ev.Timestamp,
		})
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Sugar().Infow("Refund ledger restored",
		"root", c.root.Hex(), "deadline", c.deadline, "balance", c.balance.Dec())

	return c, nil
}

// ClaimRefund pays out the caller's committed refund. The proof is the
// ordered sibling-hash path for the leaf (caller, amount); verification
// sorts each pair itself, so no position flags are needed.
//
// Check order is load-bearing: deadline, claim record, proof - and the
// claim record is committed BEFORE the transfer, so a transfer-triggered
// callback observes the claim as already recorded. If the transfer then
// fails, the record stays true and the caller cannot retry. That fund-lock
// is documented behavior, not a bug.
func (c *Contract) ClaimRefund(caller common.Address, amount *uint256.Int, proof [][32]byte) error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.exit()

	if amount == nil {
		return ErrInvalidAmount
	}

	if c.clock.Now().Unix() > c.deadline {
		return ErrPeriodOver
	}

	claimed, err := c.store.IsClaimed(caller)
	if err != nil {
		return errors.Wrap(err, "failed to read claim record")
	}
	if claimed {
		return ErrAlreadyClaimed
	}

	leaf := merkle.LeafHash(&types.Entitlement{Address: caller, Amount: amount})
	if !merkle.VerifyProof(leaf, proof, c.root) {
		return ErrInvalidProof
	}

	// Commit the claim record first; this is the primary reentrancy
	// defense, the enter() guard is layered on top
	if err := c.store.SetClaimed(caller); err != nil {
		return errors.Wrap(err, "failed to write claim record")
	}

	if err := c.payOut(caller, amount); err != nil {
		// No rollback of the claim record
		return err
	}

	c.appendEvent(EventRefunded, caller, amount)
	c.logger.Sugar().Infow("Refund claimed", "address", caller.Hex(), "amount", amount.Dec())
	return nil
}

// Withdraw sends residual funds to the owner once the claim window closed.
func (c *Contract) Withdraw(caller common.Address, amount *uint256.Int) error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.exit()

	if amount == nil {
		return ErrInvalidAmount
	}

	if caller != c.owner {
		return ErrUnauthorized
	}

	if c.clock.Now().Unix() <= c.deadline {
		return ErrPeriodNotOver
	}

	c.mu.Lock()
	insufficient := c.balance.Lt(amount)
	c.mu.Unlock()
	if insufficient {
		return ErrInsufficientFunds
	}

	if err := c.payOut(c.owner, amount); err != nil {
		return err
	}

	c.appendEvent(EventWithdrawn, c.owner, amount)
	c.logger.Sugar().Infow("Residual funds withdrawn", "owner", c.owner.Hex(), "amount", amount.Dec())
	return nil
}

// Fund accepts an incoming funding transfer. A capability, not an
// operation: there are no preconditions and any amount is accepted at any
// time, before or after the deadline.
func (c *Contract) Fund(amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}

	c.mu.Lock()
	c.balance.Add(c.balance, amount)
	c.mu.Unlock()

	return c.persistState()
}

// payOut debits the balance and executes the external transfer. The mutex
// is NOT held across the transfer call: the recipient may run arbitrary
// code (including calling back into this contract) before it returns.
// On transfer failure the debit is restored - the funds never left.
func (c *Contract) payOut(to common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	if c.balance.Lt(amount) {
		c.mu.Unlock()
		return errors.Wrap(ErrTransferFailed, "contract balance below payout amount")
	}
	c.balance.Sub(c.balance, amount)
	c.mu.Unlock()

	if err := c.transferor.Transfer(to, amount); err != nil {
		c.mu.Lock()
		c.balance.Add(c.balance, amount)
		c.mu.Unlock()
		_ = c.persistState()
		return errors.Wrap(ErrTransferFailed, err.Error())
	}

	return c.persistState()
}

// enter is the single-entry mutual-exclusion guard shared by ClaimRefund
// and Withdraw. The ledger execution model is serialized EXCEPT for a
// reentrant call arriving during the transfer step of the same request;
// a plain mutex cannot express that (it would deadlock the nested call),
// so entry is a checked-then-set flag and a nested call rejects instead.
func (c *Contract) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entered {
		return ErrReentrantCall
	}
	c.entered = true
	return nil
}

func (c *Contract) exit() {
	c.mu.Lock()
	c.entered = false
	c.mu.Unlock()
}

// persistState writes root, owner, deadline, balance and the event log to
// the store.
func (c *Contract) persistState() error {
	c.mu.Lock()
	state := &persistence.ContractState{
		Root:      c.root,
		Owner:     c.owner,
		CreatedAt: c.createdAt,
		Deadline:  c.deadline,
		Balance:   c.balance.Clone(),
	}
	if len(c.events) > 0 {
		state.Events = make([]persistence.EventRecord, len(c.events))
		for i, ev := range c.events {
			state.Events[i] = persistence.EventRecord{
				Kind:      string(ev.Kind),
				Address:   ev.Address,
				Amount:    ev.Amount.Clone(),
				Timestamp: ev.Timestamp,
			}
		}
	}
	c.mu.Unlock()

	if err := c.store.SaveContractState(state); err != nil {
		return errors.Wrap(err, "failed to persist ledger state")
	}
	return nil
}

// appendEvent records an event and flushes it to the store. The mutation
// it describes already committed, so a persistence failure here is logged
// rather than surfaced; the event rejoins the store on the next flush.
func (c *Contract) appendEvent(kind EventKind, addr common.Address, amount *uint256.Int) {
	c.mu.Lock()
	c.events = append(c.events, Event{
		Kind:      kind,
		Address:   addr,
		Amount:    amount.Clone(),
		Timestamp: c.clock.Now().Unix(),
	})
	c.mu.Unlock()

	if err := c.persistState(); err != nil {
		c.logger.Sugar().Warnw("Failed to persist event log", "error", err)
	}
}

// Root returns the committed merkle root.
func (c *Contract) Root() common.Hash { return c.root }

// Owner returns the address allowed to withdraw residual funds.
func (c *Contract) Owner() common.Address { return c.owner }

// Deadline returns the Unix timestamp of the claim boundary.
func (c *Contract) Deadline() int64 { return c.deadline }

// Active reports whether the refund period is still open (current time at
// or before the deadline). Derived from the clock, never stored.
func (c *Contract) Active() bool {
	return c.clock.Now().Unix() <= c.deadline
}

// Balance returns the native currency currently held by the ledger.
func (c *Contract) Balance() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance.Clone()
}

// IsClaimed reports whether an address has already claimed.
func (c *Contract) IsClaimed(addr common.Address) (bool, error) {
	return c.store.IsClaimed(addr)
}

// Events returns a copy of the ordered, append-only event log.
func (c *Contract) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
