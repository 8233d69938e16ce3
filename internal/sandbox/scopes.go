// Package sandbox builds the binding scopes visible to a generated payload
// and executes the payload inside them.
//
// Two engines are provided behind one interface. PlanEngine interprets a
// validated operation list and is the default: the trusted interpreter owns
// every mutation, staged and committed all-or-nothing. RawEngine interprets
// generated Go source directly; it restricts which names are reachable, not
// what the execution substrate can do, so it carries a residual isolation
// risk that a name-visibility scheme cannot close.
package sandbox

import (
	"shoptalk/internal/store"
)

// Capabilities is the capability scope: the exact set of helpers a payload
// may call, plus the original request text. Nothing else is bound.
type Capabilities struct {
	// Query builds an inventory predicate: Query(field, op, value).
	Query func(field, op string, value interface{}) store.Predicate

	// CurrentBalance reads the running balance from a ledger handle.
	CurrentBalance func(ledger *store.TxnCollection) float64

	// NextID mints a fresh unique identifier with the given prefix.
	NextID func(ledger *store.TxnCollection, prefix string) string

	// Request is the original natural-language request, read-only.
	Request string
}

// Stores is the store scope: the three handles a payload may touch.
type Stores struct {
	Session *store.Store
	Items   *store.ItemCollection
	Ledger  *store.TxnCollection
}

// NewScopes binds both scopes to the live store for one execution.
func NewScopes(s *store.Store, request string) (Capabilities, Stores) {
	caps := Capabilities{
		Query: store.Q,
		CurrentBalance: func(ledger *store.TxnCollection) float64 {
			return ledger.Balance()
		},
		NextID: func(ledger *store.TxnCollection, prefix string) string {
			return ledger.NextID(prefix)
		},
		Request: request,
	}
	stores := Stores{
		Session: s,
		Items:   s.Items(),
		Ledger:  s.Ledger(),
	}
	return caps, stores
}
