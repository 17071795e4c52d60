// Package vector provides an in-memory vector index and similarity helpers.
package vector

import "context"

// Index stores vectors by id and answers nearest-neighbour queries.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity for normalized vectors
}
