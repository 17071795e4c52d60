package knowledge

import (
	"sort"

	"github.com/hyperjump/sensei/internal/keyword"
	"github.com/hyperjump/sensei/internal/vector"
)

// FusedResult holds a snippet id with its fused and per-leg scores.
type FusedResult struct {
	ID            string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores scales keyword scores to [0,1] by the max score.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// SemanticScores maps vector hits to id -> score. Cosine scores are already in [0,1].
func SemanticScores(results []*vector.VectorResult) map[string]float64 {
	out := make(map[string]float64, len(results))
	for _, r := range results {
		s := r.Score
		if s < 0 {
			s = 0
		}
		out[r.ID] = s
	}
	return out
}

// Fuse merges keyword and semantic scores with weights. Results are sorted by score desc,
// then id asc, so equal scores always come back in the same order.
func Fuse(keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []*FusedResult {
	scoreMap := make(map[string]*FusedResult, len(keywordScores)+len(semanticScores))
	for id, score := range keywordScores {
		scoreMap[id] = &FusedResult{ID: id, KeywordScore: score}
	}
	for id, score := range semanticScores {
		if r, ok := scoreMap[id]; ok {
			r.SemanticScore = score
		} else {
			scoreMap[id] = &FusedResult{ID: id, SemanticScore: score}
		}
	}
	results := make([]*FusedResult, 0, len(scoreMap))
	for _, r := range scoreMap {
		r.Score = keywordWeight*r.KeywordScore + semanticWeight*r.SemanticScore
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}
