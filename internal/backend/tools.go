package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/sensei/internal/models"
)

// Tool is an action the framework backend lets the model invoke.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) (string, error)
}

// Searcher is the part of the knowledge retriever the knowledge tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.KnowledgeSnippet, error)
}

// KnowledgeTool exposes knowledge base search as a tool.
type KnowledgeTool struct {
	searcher Searcher
	topK     int
}

// NewKnowledgeTool returns the knowledge_search tool.
func NewKnowledgeTool(s Searcher, topK int) *KnowledgeTool {
	if topK <= 0 {
		topK = 3
	}
	return &KnowledgeTool{searcher: s, topK: topK}
}

// Name implements Tool.
func (k *KnowledgeTool) Name() string { return "knowledge_search" }

// Description implements Tool.
func (k *KnowledgeTool) Description() string {
	return "Search the course knowledge base. Input is a short search query."
}

// Run implements Tool.
func (k *KnowledgeTool) Run(ctx context.Context, input string) (string, error) {
	results, err := k.searcher.Search(ctx, input, k.topK)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No matching knowledge found.", nil
	}
	var b strings.Builder
	for i, s := range results {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, s.Title, s.Text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
