package sandbox

import (
	"context"

	"shoptalk/internal/payload"
	"shoptalk/internal/store"
)

// Output is the declared set of slots a payload populates. The orchestrator
// validates these before trusting them; nothing is inferred from whatever
// else the payload happened to produce.
type Output struct {
	Status  string
	Message string

	// Answer slots, resolved in order: text, then rows, then record.
	AnswerText   string
	AnswerRows   []map[string]interface{}
	AnswerRecord map[string]interface{}
}

// Respond sets the status label and message in one call. Raw payloads use
// this through the bound Out handle.
func (o *Output) Respond(status, message string) {
	o.Status = status
	o.Message = message
}

// AnswerKind identifies which answer slot resolved.
type AnswerKind string

const (
	AnswerNone   AnswerKind = ""
	AnswerText   AnswerKind = "text"
	AnswerRows   AnswerKind = "rows"
	AnswerRecord AnswerKind = "record"
)

// ResolveAnswer returns the first populated answer slot. The returned kind
// is AnswerNone when no slot was set, which the orchestrator treats as a
// MissingAnswer condition.
func (o *Output) ResolveAnswer() (interface{}, AnswerKind) {
	switch {
	case o.AnswerText != "":
		return o.AnswerText, AnswerText
	case len(o.AnswerRows) > 0:
		return o.AnswerRows, AnswerRows
	case len(o.AnswerRecord) > 0:
		return o.AnswerRecord, AnswerRecord
	default:
		return nil, AnswerNone
	}
}

// Result is what one execution produced. Faults are absorbed into ErrorText
// and never re-raised; diagnostic output is buffered, not streamed.
type Result struct {
	Payload        string
	CapturedOutput string
	ErrorText      string
	Out            *Output
	PostState      *store.Snapshot
}

// Faulted reports whether the run stopped at an unhandled fault.
func (r *Result) Faulted() bool { return r.ErrorText != "" }

// Engine runs one payload to completion or first unhandled fault.
type Engine interface {
	Execute(ctx context.Context, p payload.Payload, caps Capabilities, stores Stores) *Result
}
