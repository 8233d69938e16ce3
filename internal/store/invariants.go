package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shoptalk/internal/logging"
)

// Violation kinds reported by CheckInvariants.
const (
	ViolationNegativeStock = "negative_stock"
	ViolationBalanceChain  = "balance_chain"
	ViolationDuplicateID   = "duplicate_id"
)

// InvariantViolation is a post-execution consistency failure. Payloads are
// machine-generated and not trusted, so the orchestrator runs this check
// defensively after every execution even though a correct payload preserves
// the invariants on its own.
type InvariantViolation struct {
	Kind   string
	Detail string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("store invariant violated (%s): %s", v.Kind, v.Detail)
}

// CheckInvariants validates the two store-wide invariants plus identifier
// uniqueness:
//   - no item has negative stock;
//   - the ledger is an exact running sum: balance_after(k) equals
//     balance_after(k-1) plus amount(k) over the full chronological sequence.
//
// The refund sign convention (returns carry negative amounts) is validated
// indirectly: a wrong-signed amount breaks the balance chain unless the
// payload also recomputed the balance with the same wrong sign, in which
// case the chain stays internally consistent and the error is a policy
// violation this check cannot see.
func (s *Store) CheckInvariants() error {
	items, err := s.Items().All()
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Stock < 0 {
			return &InvariantViolation{
				Kind:   ViolationNegativeStock,
				Detail: fmt.Sprintf("item %s has stock %d", it.ID, it.Stock),
			}
		}
	}

	ledger, err := s.Ledger().All()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(ledger))
	prev := decimal.Zero
	for _, t := range ledger {
		if seen[t.ID] {
			return &InvariantViolation{
				Kind:   ViolationDuplicateID,
				Detail: fmt.Sprintf("transaction id %s appears more than once", t.ID),
			}
		}
		seen[t.ID] = true

		want := prev.Add(t.Amount)
		if !t.BalanceAfter.Equal(want) {
			return &InvariantViolation{
				Kind: ViolationBalanceChain,
				Detail: fmt.Sprintf("transaction %s: balance_after %s, want %s (prev %s + amount %s)",
					t.ID, t.BalanceAfter.String(), want.String(), prev.String(), t.Amount.String()),
			}
		}
		prev = t.BalanceAfter
	}

	logging.StoreDebug("Invariants hold: %d items, %d ledger entries", len(items), len(ledger))
	return nil
}
