package types

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Entitlement is a single committed refund: an investor address and the
// amount owed to it, scaled to the smallest native unit (wei at 18 decimals).
type Entitlement struct {
	Address common.Address
	Amount  *uint256.Int
}

// SortEntitlements sorts entitlements by address in ascending byte order.
// This ensures deterministic commitment construction regardless of the
// order the allocation table was read in.
func SortEntitlements(ents []*Entitlement) []*Entitlement {
	sorted := make([]*Entitlement, len(ents))
	copy(sorted, ents)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Address.Cmp(sorted[j].Address) < 0
	})

	return sorted
}
