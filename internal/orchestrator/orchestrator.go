// Package orchestrator composes one request/response cycle: generation,
// extraction, scope construction, execution, snapshot comparison and outcome
// classification.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"shoptalk/internal/logging"
	"shoptalk/internal/payload"
	"shoptalk/internal/perception"
	"shoptalk/internal/sandbox"
	"shoptalk/internal/status"
	"shoptalk/internal/store"
)

// Response is the structured result of one cycle.
type Response struct {
	RequestID      string
	Request        string
	GenerationText string
	Execution      *sandbox.Result
	Status         status.Status
	Answer         string
	Before         *store.Snapshot
	After          *store.Snapshot

	// InvariantErr records a post-execution consistency failure. The store
	// state is suspect when this is set; the user still gets a response.
	InvariantErr error
}

// Session owns the store for its lifetime and serializes request cycles.
// The store is shared mutable state with no internal locking, so concurrent
// Handle calls are funneled through a single writer lock here.
type Session struct {
	mu     sync.Mutex
	store  *store.Store
	client perception.Client
	engine sandbox.Engine
	mode   string

	// fixture, when set, is reapplied before every cycle so scenarios run
	// against a canonical state. Optional convenience, not core contract.
	fixture *store.Fixture
}

// Option configures a Session.
type Option func(*Session)

// WithResetFixture makes every cycle start from the given fixture state.
func WithResetFixture(f *store.Fixture) Option {
	return func(s *Session) { s.fixture = f }
}

// New creates a session over an opened store.
func New(st *store.Store, client perception.Client, engine sandbox.Engine, mode string, opts ...Option) *Session {
	s := &Session{store: st, client: client, engine: engine, mode: mode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the session's store for CLI conveniences (history, check).
func (s *Session) Store() *store.Store { return s.store }

// Handle runs one full cycle. The only error that escalates is an empty
// generation output (or a failed generation call itself); every payload
// fault is absorbed into the response.
func (s *Session) Handle(ctx context.Context, request string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requestID := uuid.NewString()
	timer := logging.StartTimer(logging.CategoryOrchestrator, "Handle "+requestID)
	defer timer.Stop()
	logging.Orchestrator("[%s] request: %q", requestID, request)

	if s.fixture != nil {
		if err := s.store.Seed(s.fixture); err != nil {
			return nil, fmt.Errorf("fixture reset failed: %w", err)
		}
	}

	before, err := s.store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("before-snapshot failed: %w", err)
	}

	system, user := perception.BuildPrompt(s.mode, s.store.DescribeSchema(), request)
	generated, err := s.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	p, err := payload.Extract(generated)
	if err != nil {
		// EmptyPayload is the one hard failure in the pipeline.
		return nil, err
	}
	logging.Extract("[%s] payload kind=%s, %d bytes", requestID, p.Kind, len(p.Text))

	caps, stores := sandbox.NewScopes(s.store, request)
	result := s.engine.Execute(ctx, p, caps, stores)

	after, err := s.store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("after-snapshot failed: %w", err)
	}

	resp := &Response{
		RequestID:      requestID,
		Request:        request,
		GenerationText: generated,
		Execution:      result,
		Before:         before,
		After:          after,
	}

	// The payload is machine-generated: check the store invariants even
	// though a correct payload preserves them on its own.
	if err := s.store.CheckInvariants(); err != nil {
		resp.InvariantErr = err
		logging.OrchestratorError("[%s] %v", requestID, err)
	}

	resp.Status, resp.Answer = s.classify(requestID, result)
	logging.Orchestrator("[%s] status=%s faulted=%v", requestID, resp.Status, result.Faulted())
	return resp, nil
}

// classify turns a raw execution result into a user-facing outcome. A run
// that produced no recognized label or no message counts as invalid_request;
// the raw error text stays on the result for diagnostics and never reaches
// the user.
func (s *Session) classify(requestID string, result *sandbox.Result) (status.Status, string) {
	st, msg, ok := status.Normalize(result.Out.Status, result.Out.Message)
	if ok {
		return st, msg
	}

	if _, kind := result.Out.ResolveAnswer(); kind == sandbox.AnswerNone {
		logging.Orchestrator("[%s] missing answer: no output slot was set", requestID)
	}

	// If the payload set an answer before faulting, that answer survives.
	if result.Out.AnswerText != "" {
		return status.InvalidRequest, result.Out.AnswerText
	}
	if result.Faulted() {
		logging.OrchestratorError("[%s] execution fault absorbed: %s", requestID, result.ErrorText)
	}
	return status.InvalidRequest, status.FallbackMessage
}
