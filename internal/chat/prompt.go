package chat

import (
	"fmt"
	"strings"

	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/mode"
	"github.com/hyperjump/sensei/internal/models"
	"github.com/hyperjump/sensei/pkg/utils"
)

// maxSnippetChars bounds a single snippet in the prompt; long extracted documents are chunked
// already, so this only trims outliers.
const maxSnippetChars = 1500

// systemPrompt renders the mode template followed by the retrieved course material.
func systemPrompt(tmpl mode.Template, snippets []models.KnowledgeSnippet) string {
	var b strings.Builder
	b.WriteString(tmpl.SystemPrompt())
	if len(snippets) == 0 {
		return b.String()
	}
	b.WriteString("\n\nRelevant course material (use it when it answers the question):\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, s.Title, utils.Truncate(s.Text, maxSnippetChars))
	}
	return strings.TrimRight(b.String(), "\n")
}

func historyTokens(history []models.Message) int {
	n := 0
	for _, m := range history {
		n += utils.EstimateTokens(m.Content)
	}
	return n
}

// buildPrompt fits the template, snippets, history and the latest message into budget tokens.
// Oldest history goes first, then the lowest-ranked snippets. The template and the latest
// message are always kept, even if they alone exceed the budget. It returns the request and
// the snippets that made it into the prompt.
func buildPrompt(tmpl mode.Template, history []models.Message, snippets []models.KnowledgeSnippet, message string, budget int) (*backend.Request, []models.KnowledgeSnippet) {
	hist := history
	snips := snippets
	for {
		system := systemPrompt(tmpl, snips)
		total := utils.EstimateTokens(system) + utils.EstimateTokens(message) + historyTokens(hist)
		if budget <= 0 || total <= budget {
			return &backend.Request{System: system, History: models.CloneMessages(hist), Prompt: message}, snips
		}
		switch {
		case len(hist) > 0:
			hist = hist[1:]
		case len(snips) > 0:
			snips = snips[:len(snips)-1]
		default:
			return &backend.Request{System: system, History: []models.Message{}, Prompt: message}, snips
		}
	}
}

func titles(snippets []models.KnowledgeSnippet) []string {
	out := make([]string, len(snippets))
	for i, s := range snippets {
		out[i] = s.Title
	}
	return out
}
