package keyword

import (
	"context"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/sensei/internal/models"
)

const snippetType = "snippet"

// snippetDoc is the indexed shape of a knowledge snippet.
type snippetDoc struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// English analyzer so "recursion" in a question matches "recursive" in course notes.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = en.AnalyzerName
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("category", textFieldMapping)
	docMapping.AddFieldMappingsAt("id", bleve.NewKeywordFieldMapping())

	im.AddDocumentMapping(snippetType, docMapping)
	im.DefaultType = snippetType
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = en.AnalyzerName
	return im
}

// NewMemBleveIndex creates an in-memory Bleve index. Knowledge bases are rebuilt from their
// source directory on start and on reload, so nothing needs to survive a restart.
func NewMemBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces snippets in one batch.
func (b *BleveIndex) Index(ctx context.Context, snippets []models.KnowledgeSnippet) error {
	batch := b.index.NewBatch()
	for _, s := range snippets {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := snippetDoc{ID: s.ID, Title: s.Title, Category: s.Category, Text: s.Text}
		if err := batch.Index(s.ID, doc); err != nil {
			return fmt.Errorf("index snippet %s: %w", s.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search matches query against title (boosted), text and category and returns up to limit
// results by score, ties broken by id.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	titleBoost := 2.0
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	q := bleve.NewDisjunctionQuery(
		fieldQuery(query, "title", titleBoost, fuzzy, fuzziness),
		fieldQuery(query, "text", 1.0, fuzzy, fuzziness),
		fieldQuery(query, "category", 0.5, fuzzy, fuzziness),
	)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func fieldQuery(query, field string, boost float64, fuzzy bool, fuzziness int) blevequery.Query {
	mq := bleve.NewMatchQuery(query)
	mq.SetField(field)
	mq.SetBoost(boost)
	if fuzzy {
		mq.SetFuzziness(fuzziness)
	}
	return mq
}

// Delete removes a snippet from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of snippets in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
