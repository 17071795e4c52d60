package knowledge

import (
	"testing"

	"github.com/hyperjump/sensei/internal/keyword"
	"github.com/hyperjump/sensei/internal/vector"
)

func TestNormalizeKeywordScores(t *testing.T) {
	got := NormalizeKeywordScores([]*keyword.KeywordResult{{ID: "a", Score: 4}, {ID: "b", Score: 2}})
	if got["a"] != 1 || got["b"] != 0.5 {
		t.Errorf("NormalizeKeywordScores = %v", got)
	}
	if len(NormalizeKeywordScores(nil)) != 0 {
		t.Error("nil input should give empty map")
	}
}

func TestSemanticScores_clampsNegative(t *testing.T) {
	got := SemanticScores([]*vector.VectorResult{{ID: "a", Score: 0.7}, {ID: "b", Score: -0.2}})
	if got["a"] != 0.7 || got["b"] != 0 {
		t.Errorf("SemanticScores = %v", got)
	}
}

func TestFuse(t *testing.T) {
	results := Fuse(
		map[string]float64{"a": 1, "b": 0.5},
		map[string]float64{"b": 1, "c": 0.5},
		0.5, 0.5,
	)
	if len(results) != 3 {
		t.Fatalf("len = %d, want 3", len(results))
	}
	if results[0].ID != "b" || results[0].Score != 0.75 {
		t.Errorf("first = %+v, want b with 0.75", results[0])
	}
	if results[1].ID != "a" || results[2].ID != "c" {
		t.Errorf("order = %s,%s", results[1].ID, results[2].ID)
	}
}

func TestFuse_tieBreakByID(t *testing.T) {
	results := Fuse(map[string]float64{"z": 1, "m": 1, "a": 1}, nil, 1, 0)
	if results[0].ID != "a" || results[1].ID != "m" || results[2].ID != "z" {
		t.Errorf("ties not ordered by id: %s %s %s", results[0].ID, results[1].ID, results[2].ID)
	}
}
