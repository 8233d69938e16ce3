package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"shoptalk/internal/config"
	"shoptalk/internal/payload"
	"shoptalk/internal/perception"
	"shoptalk/internal/sandbox"
	"shoptalk/internal/status"
	"shoptalk/internal/store"
)

func newSession(t *testing.T, client perception.Client) *Session {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Seed(store.DefaultFixture()); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return New(s, client, sandbox.NewPlanEngine(), config.EngineModePlan)
}

// TestHandle_PurchaseCycle drives the full pipeline with a fenced plan: the
// generation output is extracted, executed and classified, and the snapshots
// bracket the mutation.
func TestHandle_PurchaseCycle(t *testing.T) {
	mock := &perception.MockClient{Response: "Here is the plan:\n```json\n" +
		`{"customer": "alice", "ops": [{"op": "purchase", "item_id": "SKU-001", "quantity": 2}]}` +
		"\n```\n"}
	session := newSession(t, mock)

	resp, err := session.Handle(context.Background(), "two walnut organizers please")
	if err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}

	if resp.Status != status.Success {
		t.Errorf("status = %q (%s)", resp.Status, resp.Answer)
	}
	if resp.Answer == "" {
		t.Error("empty answer on success")
	}
	if resp.RequestID == "" {
		t.Error("missing request ID")
	}
	if resp.InvariantErr != nil {
		t.Errorf("invariant check failed: %v", resp.InvariantErr)
	}

	if resp.Before.ItemStock("SKU-001") != 23 || resp.After.ItemStock("SKU-001") != 21 {
		t.Errorf("stock %d -> %d, want 23 -> 21",
			resp.Before.ItemStock("SKU-001"), resp.After.ItemStock("SKU-001"))
	}
	if len(resp.After.Ledger) != len(resp.Before.Ledger)+1 {
		t.Error("ledger did not grow by one")
	}

	// The full generation text survives on the response for diagnostics.
	if resp.GenerationText != mock.Response {
		t.Error("generation text not preserved")
	}
	if mock.LastSystem == "" || mock.LastPrompt == "" {
		t.Error("prompts not sent to the client")
	}
}

// TestHandle_EmptyGeneration is the one escalating failure: a blank model
// output has nothing to execute and no safe fallback.
func TestHandle_EmptyGeneration(t *testing.T) {
	session := newSession(t, &perception.MockClient{Response: "   \n"})

	_, err := session.Handle(context.Background(), "anything")
	if !errors.Is(err, payload.ErrEmptyPayload) {
		t.Errorf("error = %v, want ErrEmptyPayload", err)
	}
}

func TestHandle_GenerationError(t *testing.T) {
	session := newSession(t, &perception.MockClient{Err: errors.New("api quota exceeded")})

	_, err := session.Handle(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error when generation fails")
	}
}

// TestHandle_FaultBecomesFallback: a garbage payload is absorbed into an
// invalid_request response, never an error from Handle.
func TestHandle_FaultBecomesFallback(t *testing.T) {
	session := newSession(t, &perception.MockClient{Response: "I could not produce a plan, sorry!"})

	resp, err := session.Handle(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Handle() escalated a payload fault: %v", err)
	}
	if resp.Status != status.InvalidRequest {
		t.Errorf("status = %q, want invalid_request", resp.Status)
	}
	if resp.Answer != status.FallbackMessage {
		t.Errorf("answer = %q, want fallback", resp.Answer)
	}
	if !resp.Execution.Faulted() {
		t.Error("execution fault not recorded")
	}
	if len(resp.After.Ledger) != len(resp.Before.Ledger) {
		t.Error("faulted run mutated the ledger")
	}
}

func TestHandle_RefusalPassesThrough(t *testing.T) {
	session := newSession(t, &perception.MockClient{Response: "```json\n" +
		`{"ops": [{"op": "purchase", "item_id": "SKU-004", "quantity": 5}]}` +
		"\n```"})

	resp, err := session.Handle(context.Background(), "five pen sets")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != status.InsufficientStock {
		t.Errorf("status = %q, want insufficient_stock", resp.Status)
	}
	if resp.After.ItemStock("SKU-004") != resp.Before.ItemStock("SKU-004") {
		t.Error("refused purchase changed stock")
	}
}

// TestHandle_ResetFixture verifies the reset option reseeds before each
// cycle, so the same purchase succeeds twice from the same starting stock.
func TestHandle_ResetFixture(t *testing.T) {
	mock := &perception.MockClient{Response: "```json\n" +
		`{"ops": [{"op": "purchase", "item_id": "SKU-004", "quantity": 1}]}` +
		"\n```"}

	s, err := store.Open(filepath.Join(t.TempDir(), "reset.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	session := New(s, mock, sandbox.NewPlanEngine(), config.EngineModePlan,
		WithResetFixture(store.DefaultFixture()))

	for i := 0; i < 2; i++ {
		resp, err := session.Handle(context.Background(), "one pen set")
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if resp.Status != status.Success {
			t.Fatalf("cycle %d status = %q (%s)", i, resp.Status, resp.Answer)
		}
		if resp.Before.ItemStock("SKU-004") != 1 {
			t.Errorf("cycle %d did not start from fixture stock", i)
		}
	}
}

func TestHandle_UniqueRequestIDs(t *testing.T) {
	session := newSession(t, perception.NewMockClient())

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		resp, err := session.Handle(context.Background(), "hello")
		if err != nil {
			t.Fatal(err)
		}
		if ids[resp.RequestID] {
			t.Fatalf("duplicate request ID %q", resp.RequestID)
		}
		ids[resp.RequestID] = true
	}
}

// TestHandle_MockClientDefault: the built-in mock produces a well-formed
// refusal, so offline runs exercise the whole pipeline.
func TestHandle_MockClientDefault(t *testing.T) {
	session := newSession(t, perception.NewMockClient())

	resp, err := session.Handle(context.Background(), "what's the weather?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != status.UnsupportedIntent {
		t.Errorf("status = %q, want unsupported_intent", resp.Status)
	}
}
