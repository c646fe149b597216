package domain

import "context"

// Generator turns a retrieved context set into a prose answer.
// It is a pure capability: fallible, no side effects on the store.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
