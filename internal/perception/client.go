// Package perception talks to the generation collaborator. The rest of the
// system treats it as an opaque external call that returns text.
package perception

import "context"

// Client is the minimal interface the orchestrator uses to call an LLM.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
