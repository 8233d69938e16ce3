package store

import (
	"context"
	"fmt"
	"time"

	"shoptalk/internal/logging"
)

// Staging collects mutations in memory so a plan run can be applied
// all-or-nothing. Nothing touches the database until Commit, which applies
// every staged write inside a single SQL transaction.
type Staging struct {
	s       *Store
	stock   map[string]int
	appends []Transaction
	done    bool
}

// Begin opens a staging area over the store.
func (s *Store) Begin() *Staging {
	return &Staging{s: s, stock: make(map[string]int)}
}

// Item returns the item as the staged writes would leave it.
func (st *Staging) Item(id string) (*Item, error) {
	it, err := st.s.Items().Get(id)
	if err != nil {
		return nil, err
	}
	if stock, ok := st.stock[id]; ok {
		it.Stock = stock
	}
	return it, nil
}

// SetStock stages a new stock level for an item.
func (st *Staging) SetStock(id string, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: item %s stock %d", ErrNegativeStock, id, stock)
	}
	st.stock[id] = stock
	return nil
}

// Append stages one ledger entry.
func (st *Staging) Append(t Transaction) {
	st.appends = append(st.appends, t)
}

// Staged reports how many writes are pending.
func (st *Staging) Staged() int {
	return len(st.stock) + len(st.appends)
}

// Commit applies every staged write in one database transaction. After a
// failed commit the store is exactly as it was before.
func (st *Staging) Commit(ctx context.Context) error {
	if st.done {
		return fmt.Errorf("staging already finished")
	}
	st.done = true

	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for id, stock := range st.stock {
		res, err := tx.ExecContext(ctx, `UPDATE items SET stock = ? WHERE id = ?`, stock, id)
		if err != nil {
			return fmt.Errorf("failed to update stock for %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}

	for _, t := range st.appends {
		created := t.CreatedAt
		if created.IsZero() {
			created = time.Unix(0, nowUnixNano())
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, customer, summary, amount, balance_after, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.Customer, t.Summary, t.Amount.String(), t.BalanceAfter.String(), created.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to append transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logging.Store("Committed %d stock update(s), %d ledger entr(ies)", len(st.stock), len(st.appends))
	return nil
}

// Discard drops every staged write.
func (st *Staging) Discard() {
	st.done = true
	st.stock = nil
	st.appends = nil
}
