package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/sensei/internal/analysis"
	"github.com/hyperjump/sensei/pkg/utils"
)

// HashingEmbedder is a deterministic bag-of-stems embedder. Each stem is hashed into one of
// dims buckets with a hash-derived sign, and the vector is L2-normalized, so the cosine of two
// embeddings tracks their stem overlap. It needs no model file.
type HashingEmbedder struct {
	dims     int
	analyzer *analysis.Analyzer
}

// NewHashingEmbedder returns an embedder producing vectors of the given dimensions.
func NewHashingEmbedder(dims int, analyzer *analysis.Analyzer) *HashingEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashingEmbedder{dims: dims, analyzer: analyzer}
}

// Embed returns the hashed stem vector of text. Text without terms yields the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dims)
	for _, term := range e.analyzer.Terms(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term.Stem))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(e.dims))] += sign
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dims
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
