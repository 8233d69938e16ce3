package perception

import (
	"fmt"

	"shoptalk/internal/config"
)

// planSystemPrompt instructs the model to emit a JSON operation list. The
// trusted engine performs all arithmetic, so the model only names items,
// quantities and the outcome for non-trade intents.
const planSystemPrompt = `You are the order assistant for a small shop.
Turn the customer's request into ONE JSON plan inside a json code fence:

` + "```json" + `
{"customer": "<name or Guest>", "ops": [ ... ]}
` + "```" + `

Allowed operations:
  {"op": "purchase", "item_id": "...", "quantity": N}   buy N units of an item
  {"op": "return",   "item_id": "...", "quantity": N}   return N units
  {"op": "lookup",   "query": {"field": "...", "op": "...", "value": ...}}
      query fields: id, name, description, stock, unit_price
      query ops: ==, !=, contains, >, >=, <, <=
  {"op": "respond",  "status": "...", "message": "..."}
      status must be one of: success, no_match, insufficient_stock,
      invalid_request, unsupported_intent

Rules:
- One purchase/return op per item, in the order the customer listed them.
- If the request has a purchase intent but no derivable quantity, emit a
  single respond op with status invalid_request asking for the quantity.
- If the request is not about this shop, respond with unsupported_intent.
- Always include a respond op with a short human-readable message unless a
  purchase or return already tells the full story.`

// rawSystemPrompt instructs the model to emit Go source executed directly by
// the interpreter against the bound shop package.
const rawSystemPrompt = `You are the order assistant for a small shop.
Write Go code inside a go code fence defining func Run(). The code runs in an
interpreter where only the package "shop/shop" and these stdlib packages are
importable: fmt, strings, strconv, math, sort, time, encoding/json.

Bindings in package shop:
  shop.Request                                   the customer's request text
  shop.Query(field, op, value)                   build an inventory predicate
  shop.CurrentBalance(shop.Ledger)               current running balance
  shop.NextID(shop.Ledger, "TXN")                mint a fresh transaction id
  shop.DB, shop.Items, shop.Ledger               the three store handles
  shop.Items.Find(pred) / Get(id) / SetStock(id, n) / AdjustStock(id, d)
  shop.Ledger.AppendEntry(id, customer, summary, amount, balanceAfter)
  shop.Out.Respond(status, message)              set the outcome
  shop.Out.AnswerText / AnswerRows / AnswerRecord

Contract:
- Purchases: require stock >= quantity, decrement stock, append ONE ledger
  entry per item with amount = quantity * unit price and the sequentially
  updated balance. Returns: increment stock and append a NEGATIVE amount.
- Never aggregate several items into one ledger entry.
- If any item in a multi-item request has insufficient stock, change nothing
  and respond with status insufficient_stock.
- Always call shop.Out.Respond with one of: success, no_match,
  insufficient_stock, invalid_request, unsupported_intent.`

// BuildPrompt renders the system and user prompts for one request.
func BuildPrompt(mode, schema, request string) (system, user string) {
	if mode == config.EngineModeRaw {
		system = rawSystemPrompt
	} else {
		system = planSystemPrompt
	}
	user = fmt.Sprintf("Store state:\n%s\nCustomer request: %s", schema, request)
	return system, user
}
