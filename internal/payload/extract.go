// Package payload locates the executable payload inside raw generation
// output. Models wrap code in markdown fences most of the time, but not
// always, so extraction falls back to the whole response.
package payload

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyPayload is returned when the generation output is empty or
// whitespace-only. This is the only extraction failure that escalates.
var ErrEmptyPayload = errors.New("payload: generation output is empty")

// Kind is a hint about what the extracted payload contains, taken from the
// fence language tag when present.
type Kind string

const (
	KindUnknown Kind = ""
	KindGo      Kind = "go"
	KindJSON    Kind = "json"
)

// Payload is the single extracted code string plus its kind hint.
type Payload struct {
	Text string
	Kind Kind
}

// Fenced block: optional language tag, then anything up to the closing fence.
// Case-insensitive, newlines allowed inside. Only the first block is honored.
var fenceRegex = regexp.MustCompile("(?is)```([a-z0-9_+-]*)[ \t]*\r?\n(.*?)```")

// Extract returns the payload contained in raw generation output.
//
// If a fenced block is present, its trimmed interior is the payload and any
// later blocks are ignored. If no fence is found the entire trimmed input is
// the payload; that is a fallback, not an error. Only empty input fails.
func Extract(raw string) (Payload, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Payload{}, ErrEmptyPayload
	}

	m := fenceRegex.FindStringSubmatch(raw)
	if m == nil {
		return Payload{Text: trimmed, Kind: sniffKind(trimmed)}, nil
	}

	text := strings.TrimSpace(m[2])
	return Payload{Text: text, Kind: kindFromTag(m[1], text)}, nil
}

func kindFromTag(tag, text string) Kind {
	switch strings.ToLower(tag) {
	case "go", "golang":
		return KindGo
	case "json":
		return KindJSON
	default:
		return sniffKind(text)
	}
}

// sniffKind guesses the payload kind when no language tag is available.
func sniffKind(text string) Kind {
	switch {
	case strings.HasPrefix(text, "{") || strings.HasPrefix(text, "["):
		return KindJSON
	case strings.Contains(text, "package main") || strings.Contains(text, "func Run("):
		return KindGo
	default:
		return KindUnknown
	}
}
