package prompt

import (
	"context"
	"fmt"
)

// Responder produces the output of a prompt run.
type Responder interface {
	Respond(ctx context.Context, p Prompt, input string) (string, error)
}

// MockResponder echoes the prompt title and input in a fixed template. No model is called.
type MockResponder struct{}

func (MockResponder) Respond(_ context.Context, p Prompt, input string) (string, error) {
	return fmt.Sprintf("[MOCK RESPONSE] '%s' → '%s'", p.Title, input), nil
}
