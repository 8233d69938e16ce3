package store

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"shoptalk/internal/logging"
)

// Fixture is the canonical seed state: a catalog of items and an opening
// balance recorded as the first ledger entry under the seed sentinel.
type Fixture struct {
	OpeningBalance string        `yaml:"opening_balance"`
	Items          []FixtureItem `yaml:"items"`
}

// FixtureItem is one catalog row in the fixture file. The price is a string
// so the YAML stays exact ("80.00", not a float).
type FixtureItem struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Stock       int    `yaml:"stock"`
	UnitPrice   string `yaml:"unit_price"`
}

// DefaultFixture is the built-in catalog used when no fixture file is
// configured.
func DefaultFixture() *Fixture {
	return &Fixture{
		OpeningBalance: "1000.00",
		Items: []FixtureItem{
			{ID: "SKU-001", Name: "Walnut Desk Organizer", Description: "Five-compartment organizer, oiled walnut", Stock: 23, UnitPrice: "80.00"},
			{ID: "SKU-002", Name: "Brass Page Holder", Description: "Weighted page holder for hardcovers", Stock: 8, UnitPrice: "24.50"},
			{ID: "SKU-003", Name: "Linen Notebook A5", Description: "Dot grid, 192 pages, lay-flat binding", Stock: 40, UnitPrice: "18.00"},
			{ID: "SKU-004", Name: "Field Pen Set", Description: "Three fine-liners with brass clip", Stock: 1, UnitPrice: "32.00"},
		},
	}
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("fixture %s contains no items", path)
	}
	return &f, nil
}

// Seed resets the store to the fixture state: both collections are wiped,
// the catalog is inserted and the opening balance is written as the first
// ledger entry. Idempotent, so scenarios can reset between runs.
func (s *Store) Seed(f *Fixture) error {
	timer := logging.StartTimer(logging.CategoryStore, "store.Seed")
	defer timer.Stop()

	opening := decimal.Zero
	if f.OpeningBalance != "" {
		var err error
		if opening, err = decimal.NewFromString(f.OpeningBalance); err != nil {
			return fmt.Errorf("invalid opening balance %q: %w", f.OpeningBalance, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ddl := range []string{`DELETE FROM transactions`, `DELETE FROM items`, `DELETE FROM sqlite_sequence WHERE name = 'transactions'`} {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
	}

	for _, it := range f.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return fmt.Errorf("item %s: invalid unit price %q: %w", it.ID, it.UnitPrice, err)
		}
		if price.IsNegative() {
			return fmt.Errorf("item %s: unit price must be non-negative", it.ID)
		}
		if it.Stock < 0 {
			return fmt.Errorf("item %s: %w", it.ID, ErrNegativeStock)
		}
		_, err = tx.Exec(`INSERT INTO items (id, name, description, stock, unit_price) VALUES (?, ?, ?, ?, ?)`,
			it.ID, it.Name, it.Description, it.Stock, price.String())
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", it.ID, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO transactions (id, customer, summary, amount, balance_after, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"TXN0001", SeedCustomer, "Opening balance", opening.String(), opening.String(), nowUnixNano())
	if err != nil {
		return fmt.Errorf("failed to write opening entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	// Reset identifier counters so TXN numbering restarts after the opener.
	s.mu.Lock()
	s.idHigh = map[string]int64{"TXN": 1}
	s.mu.Unlock()

	logging.Store("Seeded %d items, opening balance %s", len(f.Items), opening.StringFixed(2))
	return nil
}
