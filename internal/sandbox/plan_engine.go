package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shoptalk/internal/logging"
	"shoptalk/internal/payload"
	"shoptalk/internal/status"
	"shoptalk/internal/store"
)

// Plan is the validated operation list the generation collaborator produces
// in plan mode. The model proposes operations; this engine owns every
// mutation, so the store invariants cannot depend on generated arithmetic.
type Plan struct {
	Customer string   `json:"customer"`
	Ops      []PlanOp `json:"ops"`
}

// PlanOp is one operation. Exactly one of the op kinds applies; unused
// fields stay empty.
type PlanOp struct {
	Op       string     `json:"op"`                 // purchase | return | lookup | respond
	ItemID   string     `json:"item_id,omitempty"`  // purchase, return
	Quantity int        `json:"quantity,omitempty"` // purchase, return
	Query    *PlanQuery `json:"query,omitempty"`    // lookup
	Status   string     `json:"status,omitempty"`   // respond
	Message  string     `json:"message,omitempty"`  // respond
}

// PlanQuery mirrors the Q predicate constructor for lookups.
type PlanQuery struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// PlanEngine executes plans with all mutations staged and committed in a
// single database transaction. A fault or an abort anywhere in the plan
// leaves the store untouched.
type PlanEngine struct{}

// NewPlanEngine returns the default engine.
func NewPlanEngine() *PlanEngine { return &PlanEngine{} }

// Execute runs the plan payload once, synchronously.
func (e *PlanEngine) Execute(ctx context.Context, p payload.Payload, caps Capabilities, stores Stores) *Result {
	timer := logging.StartTimer(logging.CategoryEngine, "PlanEngine.Execute")
	defer timer.Stop()

	out := &Output{}
	res := &Result{Payload: p.Text, Out: out}
	var log strings.Builder

	defer func() {
		res.CapturedOutput = log.String()
		if snap, err := stores.Session.Snapshot(); err == nil {
			res.PostState = snap
		} else {
			logging.EngineError("post-state snapshot failed: %v", err)
		}
	}()

	plan, err := parsePlan(p.Text)
	if err != nil {
		res.ErrorText = err.Error()
		logging.EngineError("plan rejected: %v", err)
		return res
	}

	customer := strings.TrimSpace(plan.Customer)
	if customer == "" {
		customer = "Guest"
	}

	staging := stores.Session.Begin()
	balance, err := stores.Session.CurrentBalance()
	if err != nil {
		staging.Discard()
		res.ErrorText = fmt.Sprintf("balance read failed: %v", err)
		return res
	}

	var (
		aborted  bool
		applied  []string // summaries of staged mutations, for the synthesized message
		txnIDs   []string
		didLook  bool
		lastRows int
	)

	for i, op := range plan.Ops {
		if aborted && op.Op != "respond" {
			continue
		}
		switch op.Op {
		case "purchase", "return":
			newBal, summary, txnID, abortErr := e.applyTrade(staging, caps, stores, op, customer, balance)
			if abortErr != nil {
				// All-or-nothing: any failed item voids the whole batch.
				staging.Discard()
				aborted = true
				e.respondForAbort(res, op, abortErr)
				fmt.Fprintf(&log, "op %d (%s %s): aborted: %v\n", i, op.Op, op.ItemID, abortErr)
				continue
			}
			balance = newBal
			applied = append(applied, summary)
			txnIDs = append(txnIDs, txnID)
			fmt.Fprintf(&log, "op %d: %s\n", i, summary)

		case "lookup":
			didLook = true
			rows, err := e.applyLookup(caps, stores, op)
			if err != nil {
				staging.Discard()
				aborted = true
				res.ErrorText = err.Error()
				fmt.Fprintf(&log, "op %d (lookup): fault: %v\n", i, err)
				continue
			}
			lastRows = len(rows)
			out.AnswerRows = rows
			fmt.Fprintf(&log, "op %d: lookup matched %d item(s)\n", i, len(rows))

		case "respond":
			// A respond op cannot overrule an abort the engine decided on.
			if aborted {
				continue
			}
			out.Respond(op.Status, op.Message)
			if op.Message != "" {
				out.AnswerText = op.Message
			}
			fmt.Fprintf(&log, "op %d: respond %s\n", i, op.Status)

		default:
			staging.Discard()
			aborted = true
			res.ErrorText = fmt.Sprintf("unknown plan operation %q", op.Op)
			fmt.Fprintf(&log, "op %d: unknown op %q\n", i, op.Op)
		}
	}

	if aborted {
		return res
	}

	if staging.Staged() > 0 {
		if err := staging.Commit(ctx); err != nil {
			res.ErrorText = fmt.Sprintf("commit failed: %v", err)
			logging.EngineError("plan commit failed: %v", err)
			return res
		}
	} else {
		staging.Discard()
	}

	e.finishOutput(out, applied, txnIDs, didLook, lastRows, balance)
	return res
}

// applyTrade stages one purchase or return and returns the updated running
// balance. A non-nil error means the whole batch must abort.
func (e *PlanEngine) applyTrade(staging *store.Staging, caps Capabilities, stores Stores, op PlanOp, customer string, balance decimal.Decimal) (decimal.Decimal, string, string, error) {
	if op.Quantity <= 0 {
		return balance, "", "", fmt.Errorf("%s of %q: quantity must be positive", op.Op, op.ItemID)
	}

	it, err := staging.Item(op.ItemID)
	if err != nil {
		return balance, "", "", err
	}

	line := it.UnitPrice.Mul(decimal.NewFromInt(int64(op.Quantity))).Round(2)
	var (
		amount   decimal.Decimal
		newStock int
		summary  string
	)
	if op.Op == "purchase" {
		if it.Stock < op.Quantity {
			return balance, "", "", fmt.Errorf("%w: %s has %d in stock, requested %d", store.ErrInsufficientStock, it.Name, it.Stock, op.Quantity)
		}
		amount = line
		newStock = it.Stock - op.Quantity
		summary = fmt.Sprintf("Purchased %d x %s for %s", op.Quantity, it.Name, line.StringFixed(2))
	} else {
		// Store-wide sign policy: a return reduces the running balance.
		amount = line.Neg()
		newStock = it.Stock + op.Quantity
		summary = fmt.Sprintf("Returned %d x %s, refund %s", op.Quantity, it.Name, line.StringFixed(2))
	}

	if err := staging.SetStock(it.ID, newStock); err != nil {
		return balance, "", "", err
	}

	// Line totals are computed against the balance already updated by the
	// prior items in this request: sequential, one ledger row per item.
	balance = balance.Add(amount)
	txnID := caps.NextID(stores.Ledger, "TXN")
	staging.Append(store.Transaction{
		ID:           txnID,
		Customer:     customer,
		Summary:      summary,
		Amount:       amount,
		BalanceAfter: balance,
	})
	return balance, summary, txnID, nil
}

func (e *PlanEngine) applyLookup(caps Capabilities, stores Stores, op PlanOp) ([]map[string]interface{}, error) {
	if op.Query == nil {
		return nil, errors.New("lookup operation missing query")
	}
	pred := caps.Query(op.Query.Field, op.Query.Op, op.Query.Value)
	items, err := stores.Items.Find(pred)
	if err != nil {
		return nil, fmt.Errorf("lookup failed: %w", err)
	}
	rows := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		rows = append(rows, map[string]interface{}{
			"id":          it.ID,
			"name":        it.Name,
			"description": it.Description,
			"stock":       it.Stock,
			"unit_price":  it.UnitPrice.StringFixed(2),
		})
	}
	return rows, nil
}

// respondForAbort classifies an aborted batch. The engine decided the
// outcome, so the plan's own respond op is ignored afterwards. Non-domain
// causes stay in ErrorText; the user never sees a raw diagnostic.
func (e *PlanEngine) respondForAbort(res *Result, op PlanOp, cause error) {
	out := res.Out
	switch {
	case errors.Is(cause, store.ErrInsufficientStock):
		out.Respond(string(status.InsufficientStock),
			fmt.Sprintf("Not enough stock to complete the request: %v. Nothing was changed.", cause))
	case errors.Is(cause, store.ErrNotFound):
		out.Respond(string(status.NoMatch),
			fmt.Sprintf("No matching item: %q. Nothing was changed.", op.ItemID))
	default:
		res.ErrorText = cause.Error()
		out.Respond(string(status.InvalidRequest),
			"The request could not be applied. Nothing was changed.")
	}
	out.AnswerText = out.Message
}

// finishOutput fills whatever slots the plan left empty after a clean run.
func (e *PlanEngine) finishOutput(out *Output, applied, txnIDs []string, didLook bool, lastRows int, balance decimal.Decimal) {
	if len(txnIDs) > 0 {
		out.AnswerRecord = map[string]interface{}{
			"transaction_ids": txnIDs,
			"balance_after":   balance.StringFixed(2),
		}
	}

	if out.Status == "" {
		switch {
		case len(applied) > 0:
			out.Status = string(status.Success)
		case didLook && lastRows == 0:
			out.Status = string(status.NoMatch)
		case didLook:
			out.Status = string(status.Success)
		}
	}
	if out.Message == "" {
		switch {
		case len(applied) > 0:
			out.Message = fmt.Sprintf("%s. New balance: %s.", strings.Join(applied, "; "), balance.StringFixed(2))
		case didLook && lastRows == 0:
			out.Message = "No items matched the request."
		case didLook:
			out.Message = fmt.Sprintf("Found %d matching item(s).", lastRows)
		}
	}
	if out.AnswerText == "" && out.Message != "" && len(out.AnswerRows) == 0 {
		out.AnswerText = out.Message
	}
}

func parsePlan(text string) (*Plan, error) {
	var plan Plan
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("payload is not a valid plan: %v", err)
	}
	if len(plan.Ops) == 0 {
		return nil, errors.New("payload is not a valid plan: no operations")
	}
	return &plan, nil
}
