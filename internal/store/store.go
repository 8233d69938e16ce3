// Package store implements the two-table business store: an inventory
// catalog and an append-only transaction ledger, backed by SQLite.
//
// The store is owned by one orchestrator session for its lifetime and handed
// by reference into each execution. The engine is the only component that
// mutates it.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"shoptalk/internal/logging"
)

// Sentinel errors for store operations.
var (
	ErrNotFound          = errors.New("store: item not found")
	ErrNegativeStock     = errors.New("store: stock cannot be negative")
	ErrInsufficientStock = errors.New("store: insufficient stock")
	ErrDuplicateID       = errors.New("store: duplicate identifier")
)

// Store holds the inventory and ledger collections.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string

	// High-water marks for NextID, per prefix. Lazily seeded from the
	// ledger so identifiers stay unique across process restarts.
	idHigh map[string]int64
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable sqlite foreign_keys: %v", err)
	}

	s := &Store{db: db, dbPath: path, idHigh: make(map[string]int64)}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Store opened at %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	itemsTable := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		stock INTEGER NOT NULL,
		unit_price TEXT NOT NULL
	);`

	// seq gives the chronological order of the ledger; id carries the
	// caller-chosen prefix and must stay globally unique.
	txnsTable := `
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		customer TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`

	for _, ddl := range []string{itemsTable, txnsTable} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw session handle. It is one of the three handles placed
// in the store scope of an execution.
func (s *Store) DB() *sql.DB { return s.db }

// Items returns the inventory collection handle.
func (s *Store) Items() *ItemCollection { return &ItemCollection{s: s} }

// Ledger returns the transaction collection handle.
func (s *Store) Ledger() *TxnCollection { return &TxnCollection{s: s} }

// NextID returns a fresh identifier with the given prefix. Identifiers are
// monotonic per prefix and unique for the lifetime of the store: the counter
// is seeded from the highest suffix already present in the ledger and every
// call advances it, whether or not the identifier is ever written.
func (s *Store) NextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.idHigh[prefix]
	if !ok {
		n = s.maxIDSuffix(prefix)
	}
	n++
	s.idHigh[prefix] = n
	return fmt.Sprintf("%s%04d", prefix, n)
}

// maxIDSuffix scans the ledger for the highest numeric suffix under prefix.
// Best effort: a scan failure starts the counter at zero, and the UNIQUE
// constraint on transactions.id still backstops collisions.
func (s *Store) maxIDSuffix(prefix string) int64 {
	rows, err := s.db.Query(`SELECT id FROM transactions WHERE id LIKE ? || '%'`, prefix)
	if err != nil {
		logging.StoreError("NextID suffix scan failed for prefix %q: %v", prefix, err)
		return 0
	}
	defer rows.Close()

	var max int64
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(id, prefix), 10, 64)
		if err == nil && n > max {
			max = n
		}
	}
	return max
}

// CurrentBalance returns the running balance after the newest ledger entry,
// or zero for an empty ledger.
func (s *Store) CurrentBalance() (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRow(`SELECT balance_after FROM transactions ORDER BY seq DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return parseMoney(raw)
}

// DescribeSchema renders the store layout as text for the generation prompt.
func (s *Store) DescribeSchema() string {
	var b strings.Builder
	b.WriteString("Collections:\n")
	b.WriteString("  items (inventory catalog, keyed by id):\n")
	b.WriteString("    id TEXT, name TEXT, description TEXT, stock INTEGER (never negative), unit_price DECIMAL (non-negative)\n")
	b.WriteString("  transactions (append-only ledger, keyed by id, ordered by seq):\n")
	b.WriteString("    id TEXT, customer TEXT, summary TEXT, amount DECIMAL (signed; returns are negative), balance_after DECIMAL, created_at TIMESTAMP\n")

	items, err := s.Items().All()
	if err != nil {
		return b.String()
	}
	b.WriteString("Current inventory:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "  %s | %s | stock=%d | unit_price=%s\n", it.ID, it.Name, it.Stock, it.UnitPrice.StringFixed(2))
	}
	if bal, err := s.CurrentBalance(); err == nil {
		fmt.Fprintf(&b, "Current balance: %s\n", bal.StringFixed(2))
	}
	return b.String()
}

// parseMoney converts a stored decimal string back to a decimal value.
func parseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed money value %q: %w", raw, err)
	}
	return d, nil
}

// nowUnixNano is a seam for tests that care about ledger timestamps.
var nowUnixNano = func() int64 { return time.Now().UnixNano() }
