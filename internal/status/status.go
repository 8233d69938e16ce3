// Package status defines the closed set of outcome labels a payload run can
// produce, and the normalization applied before a label is trusted.
package status

import "strings"

// Status is one of the recognized outcome labels.
type Status string

const (
	Success           Status = "success"
	NoMatch           Status = "no_match"
	InsufficientStock Status = "insufficient_stock"
	InvalidRequest    Status = "invalid_request"
	UnsupportedIntent Status = "unsupported_intent"
)

// All lists every recognized label, in documentation order.
var All = []Status{Success, NoMatch, InsufficientStock, InvalidRequest, UnsupportedIntent}

// FallbackMessage is returned to the user when a run produced no usable
// answer. Raw diagnostics never reach the user.
const FallbackMessage = "Sorry, I wasn't able to complete that request. Could you rephrase it?"

// Valid reports whether s is a recognized label.
func (s Status) Valid() bool {
	switch s {
	case Success, NoMatch, InsufficientStock, InvalidRequest, UnsupportedIntent:
		return true
	}
	return false
}

// Parse maps a raw label string to a Status. Matching is case-insensitive
// and tolerates surrounding whitespace.
func Parse(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s, true
	}
	return "", false
}

// Normalize validates a (label, message) pair produced by an execution.
// A well-formed run yields exactly one recognized label and a non-empty
// message. Anything else normalizes to InvalidRequest with the fallback
// message; ok reports whether the pair was accepted as-is.
func Normalize(rawLabel, message string) (st Status, msg string, ok bool) {
	st, found := Parse(rawLabel)
	msg = strings.TrimSpace(message)
	if !found || msg == "" {
		return InvalidRequest, FallbackMessage, false
	}
	return st, msg, true
}
