// Package knowledge loads course knowledge snippets and retrieves the ones relevant to a question
// with hybrid keyword and semantic scoring.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/analysis"
	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/embedding"
	"github.com/hyperjump/sensei/internal/extract"
	"github.com/hyperjump/sensei/internal/keyword"
	"github.com/hyperjump/sensei/internal/models"
	"github.com/hyperjump/sensei/internal/vector"
)

const minCandidates = 20

// index is one immutable generation of the knowledge base. Reload builds a new one and swaps it in.
type index struct {
	keyword  *keyword.BleveIndex
	vectors  *vector.MemoryIndex
	snippets map[string]models.KnowledgeSnippet
}

func (ix *index) close() {
	if ix == nil {
		return
	}
	_ = ix.keyword.Close()
	_ = ix.vectors.Close()
}

// Retriever answers top-K snippet queries over a knowledge directory plus programmatic snippets.
type Retriever struct {
	cfg       config.KnowledgeConfig
	embedder  embedding.Embedder
	extractor *extract.Extractor
	logger    *zap.Logger

	mu    sync.RWMutex
	idx   *index
	extra []models.KnowledgeSnippet

	reloadMu sync.Mutex
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithEmbedder replaces the default hashing embedder.
func WithEmbedder(e embedding.Embedder) Option {
	return func(r *Retriever) { r.embedder = e }
}

// NewRetriever returns a Retriever with an empty knowledge base. Call Load to read cfg.Path.
func NewRetriever(cfg config.KnowledgeConfig, opts ...Option) (*Retriever, error) {
	r := &Retriever{
		cfg:       cfg,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.embedder == nil {
		an, err := analysis.New()
		if err != nil {
			return nil, err
		}
		r.embedder = embedding.NewCachedEmbedder(embedding.NewHashingEmbedder(cfg.EmbeddingDims, an), cfg.CacheSize)
	}
	idx, err := r.build(context.Background(), nil)
	if err != nil {
		return nil, err
	}
	r.idx = idx
	return r, nil
}

// Path is the knowledge directory, or "" when the base is programmatic only.
func (r *Retriever) Path() string {
	return r.cfg.Path
}

// Load reads the knowledge directory. It is Reload under a name that reads better at startup.
func (r *Retriever) Load(ctx context.Context) error {
	return r.Reload(ctx)
}

// Reload rebuilds the index from the knowledge directory and the snippets given to Add, then
// swaps it in. Searches in flight finish on the old generation. On error the old one stays.
func (r *Retriever) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	snippets, err := LoadDir(r.cfg.Path, r.extractor, r.logger)
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	r.mu.RLock()
	snippets = append(snippets, r.extra...)
	r.mu.RUnlock()

	idx, err := r.build(ctx, snippets)
	if err != nil {
		return err
	}
	r.mu.Lock()
	old := r.idx
	r.idx = idx
	r.mu.Unlock()
	old.close()

	r.logger.Info("knowledge base loaded",
		zap.String("path", r.cfg.Path),
		zap.Int("snippets", len(idx.snippets)))
	return nil
}

// Add indexes snippets into the live generation and keeps them across reloads. A snippet whose
// id is already present replaces it.
func (r *Retriever) Add(ctx context.Context, snippets ...models.KnowledgeSnippet) error {
	if len(snippets) == 0 {
		return nil
	}
	clean := make([]models.KnowledgeSnippet, 0, len(snippets))
	for _, s := range snippets {
		s.Text = Preprocess(s.Text)
		if s.ID == "" || s.Text == "" {
			return fmt.Errorf("%w: snippet needs an id and text", models.ErrInvalidArgument)
		}
		s.Score = 0
		clean = append(clean, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx.keyword == nil {
		return fmt.Errorf("knowledge retriever is closed")
	}
	if err := r.indexInto(ctx, r.idx, clean); err != nil {
		return err
	}
	r.extra = append(r.extra, clean...)
	return nil
}

// Remove deletes snippets by id from the live generation and forgets any added with Add.
// Snippets loaded from the directory come back on the next reload. Unknown ids are ignored.
// It returns how many snippets were removed.
func (r *Retriever) Remove(ctx context.Context, ids ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx.keyword == nil {
		return 0, fmt.Errorf("knowledge retriever is closed")
	}
	drop := make(map[string]bool, len(ids))
	var present []string
	for _, id := range ids {
		if _, ok := r.idx.snippets[id]; ok && !drop[id] {
			present = append(present, id)
		}
		drop[id] = true
	}
	for _, id := range present {
		if err := r.idx.keyword.Delete(ctx, id); err != nil {
			return 0, fmt.Errorf("delete snippet %s: %w", id, err)
		}
		delete(r.idx.snippets, id)
	}
	if err := r.idx.vectors.Remove(ctx, present); err != nil {
		return 0, err
	}
	kept := r.extra[:0]
	for _, s := range r.extra {
		if !drop[s.ID] {
			kept = append(kept, s)
		}
	}
	r.extra = kept
	return len(present), nil
}

// Size returns the number of snippets in the live generation.
func (r *Retriever) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.idx.snippets)
}

// Search returns up to topK snippets for query in descending relevance, ties broken by id.
// An empty base, a blank query, or nothing above min_score gives an empty slice and no error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]models.KnowledgeSnippet, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidArgument, topK)
	}
	query = strings.TrimSpace(query)
	out := []models.KnowledgeSnippet{}
	if query == "" {
		return out, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.idx
	if len(idx.snippets) == 0 {
		return out, nil
	}
	candidates := topK * 4
	if candidates < minCandidates {
		candidates = minCandidates
	}

	var (
		keywordResults  []*keyword.KeywordResult
		semanticResults []*vector.VectorResult
		errChan         = make(chan error, 2)
		wg              sync.WaitGroup
	)
	if r.cfg.KeywordWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := idx.keyword.Search(ctx, query, candidates, nil)
			if err != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", err)
				return
			}
			keywordResults = results
		}()
	}
	if r.cfg.SemanticWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := r.embedder.Embed(ctx, query)
			if err != nil {
				errChan <- fmt.Errorf("embedding failed: %w", err)
				return
			}
			if vector.L2Norm(vec) == 0 {
				return
			}
			results, err := idx.vectors.Search(ctx, vec, candidates)
			if err != nil {
				errChan <- fmt.Errorf("vector search failed: %w", err)
				return
			}
			semanticResults = results
		}()
	}
	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	fused := Fuse(NormalizeKeywordScores(keywordResults), SemanticScores(semanticResults),
		r.cfg.KeywordWeight, r.cfg.SemanticWeight)
	for _, f := range fused {
		if len(out) == topK {
			break
		}
		if f.Score <= 0 || f.Score < r.cfg.MinScore {
			continue
		}
		s, ok := idx.snippets[f.ID]
		if !ok {
			continue
		}
		s.Score = f.Score
		out = append(out, s)
	}
	r.logger.Debug("knowledge search",
		zap.String("query", query),
		zap.Int("candidates", len(fused)),
		zap.Int("returned", len(out)))
	return out, nil
}

// Close releases the live index.
func (r *Retriever) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx.close()
	r.idx = &index{snippets: map[string]models.KnowledgeSnippet{}}
	return nil
}

func (r *Retriever) build(ctx context.Context, snippets []models.KnowledgeSnippet) (*index, error) {
	kw, err := keyword.NewMemBleveIndex()
	if err != nil {
		return nil, err
	}
	vecs, err := vector.NewMemoryIndex(r.embedder.Dimensions())
	if err != nil {
		_ = kw.Close()
		return nil, err
	}
	idx := &index{keyword: kw, vectors: vecs, snippets: make(map[string]models.KnowledgeSnippet, len(snippets))}
	if err := r.indexInto(ctx, idx, snippets); err != nil {
		idx.close()
		return nil, err
	}
	return idx, nil
}

func (r *Retriever) indexInto(ctx context.Context, idx *index, snippets []models.KnowledgeSnippet) error {
	if len(snippets) == 0 {
		return nil
	}
	if err := idx.keyword.Index(ctx, snippets); err != nil {
		return err
	}
	ids := make([]string, len(snippets))
	texts := make([]string, len(snippets))
	for i, s := range snippets {
		ids[i] = s.ID
		texts[i] = s.Title + " " + s.Text
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed snippets: %w", err)
	}
	if err := idx.vectors.Add(ctx, ids, vecs); err != nil {
		return err
	}
	for _, s := range snippets {
		idx.snippets[s.ID] = s
	}
	return nil
}
