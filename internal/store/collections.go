package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shoptalk/internal/logging"
)

// ItemCollection is the inventory handle placed in the store scope.
// Writes through this handle land immediately; the staged path used by the
// plan engine goes through Staging instead.
type ItemCollection struct {
	s *Store
}

// All returns every catalog item ordered by id.
func (c *ItemCollection) All() ([]Item, error) {
	rows, err := c.s.db.Query(`SELECT id, name, description, stock, unit_price FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Get returns the item with the given id, or ErrNotFound.
func (c *ItemCollection) Get(id string) (*Item, error) {
	row := c.s.db.QueryRow(`SELECT id, name, description, stock, unit_price FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Find returns the items matching the predicate.
func (c *ItemCollection) Find(p Predicate) ([]Item, error) {
	all, err := c.All()
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range all {
		if p.Match(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// SetStock writes a new stock level. The non-negative invariant is enforced
// here as well as in the post-execution check, because the caller is
// machine-generated code.
func (c *ItemCollection) SetStock(id string, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: item %s stock %d", ErrNegativeStock, id, stock)
	}
	res, err := c.s.db.Exec(`UPDATE items SET stock = ? WHERE id = ?`, stock, id)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	logging.StoreDebug("SetStock %s -> %d", id, stock)
	return nil
}

// AdjustStock applies a signed delta to an item's stock.
func (c *ItemCollection) AdjustStock(id string, delta int) error {
	it, err := c.Get(id)
	if err != nil {
		return err
	}
	return c.SetStock(id, it.Stock+delta)
}

// TxnCollection is the ledger handle placed in the store scope.
type TxnCollection struct {
	s *Store
}

// All returns the full ledger in chronological order.
func (c *TxnCollection) All() ([]Transaction, error) {
	return c.query(`SELECT seq, id, customer, summary, amount, balance_after, created_at FROM transactions ORDER BY seq`)
}

// Tail returns the newest n entries, oldest first.
func (c *TxnCollection) Tail(n int) ([]Transaction, error) {
	txns, err := c.query(
		`SELECT seq, id, customer, summary, amount, balance_after, created_at FROM transactions ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(txns)-1; i < j; i, j = i+1, j-1 {
		txns[i], txns[j] = txns[j], txns[i]
	}
	return txns, nil
}

// Append writes one ledger entry. Entries are never updated or deleted.
func (c *TxnCollection) Append(t Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Unix(0, nowUnixNano())
	}
	_, err := c.s.db.Exec(
		`INSERT INTO transactions (id, customer, summary, amount, balance_after, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Customer, t.Summary, t.Amount.String(), t.BalanceAfter.String(), t.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	logging.StoreDebug("Append txn %s amount=%s balance=%s", t.ID, t.Amount.String(), t.BalanceAfter.String())
	return nil
}

// AppendEntry is the float-friendly append used from interpreted payloads.
// Amounts are rounded to cents.
func (c *TxnCollection) AppendEntry(id, customer, summary string, amount, balanceAfter float64) error {
	return c.Append(Transaction{
		ID:           id,
		Customer:     customer,
		Summary:      summary,
		Amount:       decimal.NewFromFloat(amount).Round(2),
		BalanceAfter: decimal.NewFromFloat(balanceAfter).Round(2),
	})
}

// Balance returns the current running balance as a float. Best effort:
// a read failure logs and reports zero, because this is the payload-facing
// helper and has no error channel.
func (c *TxnCollection) Balance() float64 {
	bal, err := c.s.CurrentBalance()
	if err != nil {
		logging.StoreError("Balance read failed: %v", err)
		return 0
	}
	f, _ := bal.Float64()
	return f
}

// NextID returns a fresh unique identifier with the given prefix.
func (c *TxnCollection) NextID(prefix string) string {
	return c.s.NextID(prefix)
}

func (c *TxnCollection) query(q string, args ...interface{}) ([]Transaction, error) {
	rows, err := c.s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var (
			t       Transaction
			amount  string
			balance string
			created int64
		)
		if err := rows.Scan(&t.Seq, &t.ID, &t.Customer, &t.Summary, &amount, &balance, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Amount, err = parseMoney(amount); err != nil {
			return nil, err
		}
		if t.BalanceAfter, err = parseMoney(balance); err != nil {
			return nil, err
		}
		t.CreatedAt = time.Unix(0, created)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		it    Item
		price string
	)
	if err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Stock, &price); err != nil {
		return Item{}, err
	}
	var err error
	if it.UnitPrice, err = parseMoney(price); err != nil {
		return Item{}, err
	}
	return it, nil
}
