// Package keyword provides keyword (BM25-style) indexing and search over knowledge snippets.
package keyword

import (
	"context"

	"github.com/hyperjump/sensei/internal/models"
)

// SearchOptions are optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from title matches. Values <= 0 mean 2.0.
	TitleBoost float64
	// FuzzyEnabled enables typo-tolerant term matching.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	Index(ctx context.Context, snippets []models.KnowledgeSnippet) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
