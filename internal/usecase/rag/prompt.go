package rag

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an assistant that recommends real estate listings " +
	"based on a user's natural-language requirements. Given the query and the " +
	"retrieved candidate listings below, produce a short ranked recommendation " +
	"with reasoning and actionable next steps."

// buildUserPrompt renders the query and contexts into a deterministic prompt.
// Scores are fixed at four decimals so identical retrievals produce identical
// prompts.
func buildUserPrompt(query string, contexts []Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User query: %s\n\n", query)
	b.WriteString("Retrieved candidate listings (top results):\n")

	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Listing ID %s (score=%.4f): %s", c.ID, c.Score, c.FullText)
	}

	b.WriteString("\n\nTask: Recommend the top 3 listings, explain why each " +
		"matches the user's intent, and list missing info or next steps.")
	return b.String()
}
