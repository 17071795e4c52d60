// Package cli provides output and input helpers for the sensei command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/sensei/internal/chat"
	"github.com/hyperjump/sensei/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a -output flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteChatResponse writes one answered turn to w.
func WriteChatResponse(w io.Writer, resp *chat.Response, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Answer)
	WriteChatFooter(w, resp.ConversationID, resp.Sources)
	return nil
}

// WriteChatFooter prints the sources and the id to continue the conversation with.
func WriteChatFooter(w io.Writer, conversationID string, sources []string) {
	fmt.Fprintln(w)
	if len(sources) > 0 {
		fmt.Fprintf(w, "Sources: %s\n", strings.Join(sources, "; "))
	}
	fmt.Fprintf(w, "Conversation: %s\n", conversationID)
}

// WriteSummary writes a doubt summary to w.
func WriteSummary(w io.Writer, res *models.SummaryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "%s (%d messages)\n\n", res.CourseCode, res.TotalMessages)
	fmt.Fprintln(w, res.OverallSummary)
	if len(res.Topics) > 0 {
		fmt.Fprintln(w, "\n--- Topics ---")
		for i, t := range res.Topics {
			fmt.Fprintf(w, "%d. %s [%d]\n", i+1, t.Label, t.Size)
			for _, ex := range t.ExampleQuestions {
				fmt.Fprintf(w, "   - %s\n", TruncateWords(ex, 25))
			}
		}
	}
	if len(res.Insights) > 0 {
		fmt.Fprintln(w, "\n--- Insights ---")
		for _, in := range res.Insights {
			fmt.Fprintf(w, "* %s\n", in)
		}
	}
	return nil
}

// WriteStatus writes the chatbot status to w.
func WriteStatus(w io.Writer, st *chat.Status, snippets int, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			*chat.Status
			KnowledgeSnippets int `json:"knowledge_snippets"`
		}{st, snippets})
	}
	fmt.Fprintf(w, "configured:         %t\n", st.Configured)
	if st.Configured {
		fmt.Fprintf(w, "backend:            %s\n", st.Backend)
		fmt.Fprintf(w, "model:              %s\n", st.Model)
	}
	modes := make([]string, len(st.AvailableModes))
	for i, m := range st.AvailableModes {
		modes[i] = string(m)
	}
	fmt.Fprintf(w, "modes:              %s\n", strings.Join(modes, ", "))
	fmt.Fprintf(w, "knowledge_snippets: %d\n", snippets)
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
