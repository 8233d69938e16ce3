package store

import (
	"github.com/shopspring/decimal"
)

// Snapshot captures the full store state at one instant: every item, the
// full ledger and the running balance. The orchestrator takes one before and
// one after each execution.
type Snapshot struct {
	Items   []Item
	Ledger  []Transaction
	Balance decimal.Decimal
}

// Snapshot reads the current store state.
func (s *Store) Snapshot() (*Snapshot, error) {
	items, err := s.Items().All()
	if err != nil {
		return nil, err
	}
	ledger, err := s.Ledger().All()
	if err != nil {
		return nil, err
	}
	balance, err := s.CurrentBalance()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Items: items, Ledger: ledger, Balance: balance}, nil
}

// ItemStock returns the snapshot's stock level for an item, or -1 when the
// item is absent.
func (sn *Snapshot) ItemStock(id string) int {
	for _, it := range sn.Items {
		if it.ID == id {
			return it.Stock
		}
	}
	return -1
}
