package perception

import "context"

// MockClient is a canned generation client for tests and offline runs.
type MockClient struct {
	// Response is returned from every call when Responses is empty.
	Response string
	// Responses, when set, are returned in order; the last one repeats.
	Responses []string
	// Err, when set, fails every call.
	Err error

	// LastSystem and LastPrompt record the most recent call.
	LastSystem string
	LastPrompt string

	calls int
}

// NewMockClient returns a mock that produces an unsupported-intent plan, so
// offline runs exercise the full pipeline without a network call.
func NewMockClient() *MockClient {
	return &MockClient{
		Response: "```json\n{\"ops\": [{\"op\": \"respond\", \"status\": \"unsupported_intent\", " +
			"\"message\": \"The offline mock cannot interpret requests; configure a real provider.\"}]}\n```",
	}
}

// Complete returns the canned response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem returns the canned response and records the prompts.
func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.LastSystem = systemPrompt
	m.LastPrompt = userPrompt
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		i := m.calls
		if i >= len(m.Responses) {
			i = len(m.Responses) - 1
		}
		m.calls++
		return m.Responses[i], nil
	}
	return m.Response, nil
}
