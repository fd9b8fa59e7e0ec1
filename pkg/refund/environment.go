package refund

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// The ledger environment provides three things the contract cannot supply
// itself: current time, caller identity and balance transfer. Caller
// identity arrives as an argument to each operation; Clock and Transferor
// abstract the other two so tests can pin time and inject transfer failures.

// Clock supplies the current time. The deadline is evaluated lazily against
// it at call entry; there are no scheduled transitions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall-clock implementation used outside tests.
var SystemClock Clock = systemClock{}

// Transferor executes the external native-currency payment. It reports
// success or failure; anything it triggers on the recipient side (including
// a call back into the contract) runs before it returns.
type Transferor interface {
	Transfer(to common.Address, amount *uint256.Int) error
}

// TransferFunc adapts a function to the Transferor interface.
type TransferFunc func(to common.Address, amount *uint256.Int) error

func (f TransferFunc) Transfer(to common.Address, amount *uint256.Int) error {
	return f(to, amount)
}

// NewLoggingTransferor returns a Transferor for the simulated ledger
// environment: the payment always succeeds and is recorded in the log.
// Balance bookkeeping stays inside the contract.
func NewLoggingTransferor(logger *zap.Logger) Transferor {
	return TransferFunc(func(to common.Address, amount *uint256.Int) error {
		logger.Sugar().Infow("Native transfer executed",
			"to", to.Hex(), "amount", amount.Dec())
		return nil
	})
}
