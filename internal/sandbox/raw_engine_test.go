package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"shoptalk/internal/payload"
	"shoptalk/internal/status"
	"shoptalk/internal/store"
)

func runRaw(t *testing.T, s *store.Store, code string) *Result {
	t.Helper()
	caps, stores := NewScopes(s, "raw test request")
	return NewRawEngine().Execute(context.Background(), payload.Payload{Text: code, Kind: payload.KindGo}, caps, stores)
}

func TestRawEngine_RespondOnly(t *testing.T) {
	s := newTestStore(t)
	res := runRaw(t, s, `
func Run() {
	shop.Out.Respond("unsupported_intent", "I can only help with shop items.")
}
`)
	if res.Faulted() {
		t.Fatalf("fault: %s", res.ErrorText)
	}
	if res.Out.Status != string(status.UnsupportedIntent) {
		t.Errorf("status = %q, want unsupported_intent", res.Out.Status)
	}
	if res.Out.Message != "I can only help with shop items." {
		t.Errorf("message = %q", res.Out.Message)
	}
}

func TestRawEngine_CapturesStdout(t *testing.T) {
	s := newTestStore(t)
	res := runRaw(t, s, `
import "fmt"

func Run() {
	fmt.Println("checking inventory")
	shop.Out.Respond("success", "done")
}
`)
	if res.Faulted() {
		t.Fatalf("fault: %s", res.ErrorText)
	}
	if !strings.Contains(res.CapturedOutput, "checking inventory") {
		t.Errorf("captured output = %q, want stdout text", res.CapturedOutput)
	}
}

// TestRawEngine_PurchaseFlow drives the full binding surface: find, stock
// update, ID allocation and ledger append.
func TestRawEngine_PurchaseFlow(t *testing.T) {
	s := newTestStore(t)
	res := runRaw(t, s, `
import "fmt"

func Run() {
	items, err := shop.Items.Find(shop.Query("id", "==", "SKU-001"))
	if err != nil || len(items) == 0 {
		shop.Out.Respond("no_match", "Item not found.")
		return
	}
	it := items[0]
	qty := 2
	if it.Stock < qty {
		shop.Out.Respond("insufficient_stock", "Not enough stock.")
		return
	}
	if err := shop.Items.SetStock(it.ID, it.Stock-qty); err != nil {
		shop.Out.Respond("invalid_request", "Could not update stock.")
		return
	}
	price, _ := it.UnitPrice.Float64()
	amount := price * float64(qty)
	balance := shop.CurrentBalance(shop.Ledger) + amount
	id := shop.NextID(shop.Ledger, "TXN")
	if err := shop.Ledger.AppendEntry(id, "alice", "2x Walnut Desk Organizer", amount, balance); err != nil {
		shop.Out.Respond("invalid_request", "Could not record the sale.")
		return
	}
	shop.Out.Respond("success", fmt.Sprintf("Done! Total %.2f, new balance %.2f.", amount, balance))
}
`)
	if res.Faulted() {
		t.Fatalf("fault: %s", res.ErrorText)
	}
	if res.Out.Status != string(status.Success) {
		t.Fatalf("status = %q (%s)", res.Out.Status, res.Out.Message)
	}

	it, err := s.Items().Get("SKU-001")
	if err != nil {
		t.Fatal(err)
	}
	if it.Stock != 21 {
		t.Errorf("stock = %d, want 21", it.Stock)
	}
	ledger, err := s.Ledger().All()
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 2 {
		t.Errorf("ledger has %d entries, want 2", len(ledger))
	}
	if err := s.CheckInvariants(); err != nil {
		t.Errorf("invariants broken: %v", err)
	}
}

func TestRawEngine_ForbiddenImport(t *testing.T) {
	s := newTestStore(t)
	cases := []string{
		`import "os"` + "\n\nfunc Run() { os.Exit(1) }",
		`import (
	"fmt"
	"os/exec"
)

func Run() { fmt.Println(exec.Command("ls")) }`,
		`import "net/http"` + "\n\nfunc Run() { http.Get(\"http://example.com\") }",
	}
	for _, code := range cases {
		res := runRaw(t, s, code)
		if !res.Faulted() {
			t.Errorf("forbidden import not rejected: %q", code)
		}
		if !strings.Contains(res.ErrorText, "forbidden imports") {
			t.Errorf("error = %q, want forbidden-imports rejection", res.ErrorText)
		}
	}
}

// TestRawEngine_ForbiddenImportSpellings: every legal spelling of an import
// declaration must be caught, including the one-line parenthesized form and
// aliased or dotted specs, with or without the payload's own package clause.
func TestRawEngine_ForbiddenImportSpellings(t *testing.T) {
	s := newTestStore(t)
	cases := []struct {
		name string
		code string
	}{
		{"OneLineParens", `package main

import ("os")
import shop "shop/shop"

func Run() {
	wd, _ := os.Getwd()
	shop.Out.Respond("success", "cwd="+wd)
}`},
		{"OneLineParensBare", `import ("os")

func Run() {
	wd, _ := os.Getwd()
	shop.Out.Respond("success", "cwd="+wd)
}`},
		{"Aliased", `package main

import myos "os"
import shop "shop/shop"

func Run() {
	wd, _ := myos.Getwd()
	shop.Out.Respond("success", wd)
}`},
		{"Dotted", `package main

import . "os"
import shop "shop/shop"

func Run() {
	wd, _ := Getwd()
	shop.Out.Respond("success", wd)
}`},
		{"BlockWithAllowedFirst", `package main

import (
	"fmt"
	"os/exec"
)
import shop "shop/shop"

func Run() {
	fmt.Println(exec.Command("ls"))
	shop.Out.Respond("success", "ran")
}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := runRaw(t, s, tc.code)
			if !res.Faulted() {
				t.Fatalf("payload ran: status=%q message=%q", res.Out.Status, res.Out.Message)
			}
			if res.Out.Status == string(status.Success) {
				t.Errorf("forbidden import produced a success response")
			}
		})
	}
}

// TestRawEngine_RestrictedSymbols: the interpreter only ever receives the
// whitelisted symbol maps, so a blocked package is unresolvable even if its
// import were to slip past validation.
func TestRawEngine_RestrictedSymbols(t *testing.T) {
	e := NewRawEngine()
	if _, ok := e.stdlibSymbols["os/os"]; ok {
		t.Error("os symbols loaded into the interpreter")
	}
	if _, ok := e.stdlibSymbols["net/http/http"]; ok {
		t.Error("net/http symbols loaded into the interpreter")
	}
	for _, key := range []string{"fmt/fmt", "strings/strings", "strconv/strconv", "math/math", "sort/sort", "time/time", "encoding/json/json"} {
		if _, ok := e.stdlibSymbols[key]; !ok {
			t.Errorf("allowed package %q missing from interpreter symbols", key)
		}
	}
	if _, ok := e.stdlibSymbols["math/rand/rand"]; ok {
		t.Error("math/rand loaded; only math is on the whitelist")
	}
}

// TestRawEngine_PanicAbsorbed verifies a payload fault lands in ErrorText and
// never propagates; the mutation applied before the fault persists, which is
// the documented gap of this engine.
func TestRawEngine_PanicAbsorbed(t *testing.T) {
	s := newTestStore(t)
	res := runRaw(t, s, `
func Run() {
	shop.Items.SetStock("SKU-003", 39)
	var xs []int
	_ = xs[5]
}
`)
	if !res.Faulted() {
		t.Fatal("panic not reported")
	}
	if !strings.Contains(res.ErrorText, "payload fault") && !strings.Contains(res.ErrorText, "out of range") {
		t.Errorf("error = %q", res.ErrorText)
	}

	// Direct-write mode has no rollback: the partial write is visible.
	it, err := s.Items().Get("SKU-003")
	if err != nil {
		t.Fatal(err)
	}
	if it.Stock != 39 {
		t.Errorf("stock = %d, want 39 (pre-fault write persists)", it.Stock)
	}
	if res.PostState == nil {
		t.Fatal("post-state snapshot missing")
	}
	if res.PostState.ItemStock("SKU-003") != 39 {
		t.Error("post-state snapshot should reflect the partial write")
	}
}

func TestRawEngine_MissingRun(t *testing.T) {
	s := newTestStore(t)
	res := runRaw(t, s, `
func Answer() {
	shop.Out.Respond("success", "ok")
}
`)
	if !res.Faulted() {
		t.Fatal("payload without Run accepted")
	}
	if !strings.Contains(res.ErrorText, "Run") {
		t.Errorf("error = %q", res.ErrorText)
	}
}

func TestRawEngine_NoOutputSlot(t *testing.T) {
	s := newTestStore(t)
	res := runRaw(t, s, `
func Run() {}
`)
	if res.Faulted() {
		t.Fatalf("fault: %s", res.ErrorText)
	}
	if _, kind := res.Out.ResolveAnswer(); kind != AnswerNone {
		t.Errorf("answer kind = %v, want AnswerNone", kind)
	}
}

func TestRawEngine_Timeout(t *testing.T) {
	s := newTestStore(t)
	caps, stores := NewScopes(s, "slow request")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	code := `
import "time"

func Run() {
	time.Sleep(3 * time.Second)
	shop.Out.Respond("success", "too late")
}
`
	res := NewRawEngine().Execute(ctx, payload.Payload{Text: code, Kind: payload.KindGo}, caps, stores)
	if !res.Faulted() {
		t.Fatal("timeout not reported")
	}
	if !strings.Contains(res.ErrorText, "timed out") {
		t.Errorf("error = %q, want timeout", res.ErrorText)
	}
}

// TestRawEngine_TimeoutWhilePrinting: a payload that keeps writing past its
// deadline races Execute's read of the captured output unless the buffer is
// synchronized. Run with -race to catch regressions.
func TestRawEngine_TimeoutWhilePrinting(t *testing.T) {
	s := newTestStore(t)
	caps, stores := NewScopes(s, "noisy request")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	code := `
import (
	"fmt"
	"time"
)

func Run() {
	for i := 0; i < 100; i++ {
		fmt.Println("tick", i)
		time.Sleep(5 * time.Millisecond)
	}
}
`
	res := NewRawEngine().Execute(ctx, payload.Payload{Text: code, Kind: payload.KindGo}, caps, stores)
	if !res.Faulted() || !strings.Contains(res.ErrorText, "timed out") {
		t.Fatalf("error = %q, want timeout", res.ErrorText)
	}
}
