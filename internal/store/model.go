package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeedCustomer marks the opening ledger entry written at seed time.
const SeedCustomer = "__seed__"

// Item is one inventory catalog row. Items are created at seed time, mutated
// only by payload execution, and never deleted.
type Item struct {
	ID          string
	Name        string
	Description string
	Stock       int
	UnitPrice   decimal.Decimal
}

// Transaction is one append-only ledger entry. Amount is signed: purchases
// are positive, returns are negative. BalanceAfter is the running balance
// after this entry was applied.
type Transaction struct {
	Seq          int64
	ID           string
	Customer     string
	Summary      string
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}
