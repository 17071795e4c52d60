package doubts

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hyperjump/sensei/internal/models"
)

func TestCluster_groupsSimilarQuestions(t *testing.T) {
	texts := []string{
		"DP recurrence for knapsack problem",
		"exam date announcement",
		"knapsack DP recurrence confusion",
	}
	clusters, err := Cluster(texts, Options{Threshold: 0.3})
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters (%+v), want 2", len(clusters), clusters)
	}
	top := clusters[0]
	if top.Size != 2 || !reflect.DeepEqual(top.Members, []int{0, 2}) {
		t.Errorf("top cluster = %+v, want members [0 2]", top)
	}
	if top.Label != "dp, recurrence, knapsack" {
		t.Errorf("label = %q", top.Label)
	}
	if len(top.ExampleQuestions) != 2 {
		t.Errorf("examples = %v, want both questions", top.ExampleQuestions)
	}
	if clusters[1].Size != 1 || clusters[1].ExampleQuestions[0] != "exam date announcement" {
		t.Errorf("second cluster = %+v", clusters[1])
	}
}

func TestCluster_courseScenario(t *testing.T) {
	texts := []string{
		"How does DP recurrence work?",
		"Why do we use min() here?",
		"How to choose base cases?",
	}
	clusters, err := Cluster(texts, Options{Threshold: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) == 0 {
		t.Fatal("expected at least one topic")
	}
	uploaded := map[string]bool{}
	for _, text := range texts {
		uploaded[text] = true
	}
	total := 0
	for _, c := range clusters {
		total += c.Size
		for _, ex := range c.ExampleQuestions {
			if !uploaded[ex] {
				t.Errorf("example %q was not uploaded", ex)
			}
		}
	}
	if total != len(texts) {
		t.Errorf("clusters cover %d messages, want %d", total, len(texts))
	}
	// equal sizes keep upload order
	if clusters[0].ExampleQuestions[0] != texts[0] {
		t.Errorf("first topic example = %q, want %q", clusters[0].ExampleQuestions[0], texts[0])
	}
}

func TestCluster_deterministic(t *testing.T) {
	texts := []string{
		"segfault when freeing linked list",
		"linked list insertion order",
		"graph traversal with BFS",
		"BFS graph shortest path",
		"deadline for assignment two",
		"linked list segfault on delete",
	}
	first, err := Cluster(texts, Options{Threshold: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Cluster(texts, Options{Threshold: 0.2})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestCluster_empty(t *testing.T) {
	clusters, err := Cluster(nil, Options{Threshold: 0.25})
	if err != nil {
		t.Fatalf("empty input should not fail: %v", err)
	}
	if clusters == nil || len(clusters) != 0 {
		t.Errorf("got %#v, want empty non-nil", clusters)
	}
}

func TestCluster_singleMessage(t *testing.T) {
	clusters, err := Cluster([]string{"What is a pointer?"}, Options{Threshold: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 1 || clusters[0].Size != 1 {
		t.Fatalf("got %+v, want one cluster of size 1", clusters)
	}
	if clusters[0].Label != "pointer" {
		t.Errorf("label = %q, want pointer", clusters[0].Label)
	}
	if !reflect.DeepEqual(clusters[0].ExampleQuestions, []string{"What is a pointer?"}) {
		t.Errorf("examples = %v", clusters[0].ExampleQuestions)
	}
}

func TestCluster_identicalMessagesDeduplicateExamples(t *testing.T) {
	texts := []string{"What is recursion?", "What is recursion?", "what is recursion?"}
	clusters, err := Cluster(texts, Options{Threshold: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 1 || clusters[0].Size != 3 {
		t.Fatalf("got %+v, want one cluster of size 3", clusters)
	}
	if len(clusters[0].ExampleQuestions) != 1 {
		t.Errorf("examples = %v, want a single deduplicated example", clusters[0].ExampleQuestions)
	}
}

func TestCluster_maxExamples(t *testing.T) {
	texts := []string{
		"recursion base case",
		"recursion base case missing",
		"recursion base case wrong",
		"recursion base case order",
	}
	clusters, err := Cluster(texts, Options{Threshold: 0.3, MaxExamples: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if got := len(clusters[0].ExampleQuestions); got != 2 {
		t.Errorf("got %d examples, want 2", got)
	}
}

func TestCluster_unclustered(t *testing.T) {
	texts := []string{"???", "binary search bounds", "what is it?"}
	clusters, err := Cluster(texts, Options{Threshold: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	var un *models.TopicCluster
	for i := range clusters {
		if clusters[i].Unclustered {
			un = &clusters[i]
		}
	}
	if un == nil {
		t.Fatalf("no unclustered group in %+v", clusters)
	}
	if un.Size != 2 || un.Label != unclusteredLabel || len(un.Keywords) != 0 {
		t.Errorf("unclustered = %+v", *un)
	}
}

func TestCluster_thresholdValidation(t *testing.T) {
	for _, th := range []float64{0, -0.1, 1.5} {
		_, err := Cluster([]string{"a question"}, Options{Threshold: th})
		if !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("threshold %v: err = %v, want ErrInvalidArgument", th, err)
		}
	}
	if _, err := Cluster([]string{"a question"}, Options{Threshold: 1}); err != nil {
		t.Errorf("threshold 1 should be accepted: %v", err)
	}
}

func TestCluster_vectors(t *testing.T) {
	texts := []string{"alpha", "beta", "gamma"}
	vecs := [][]float32{{1, 0}, {0.95, 0.1}, {0, 1}}
	clusters, err := Cluster(texts, Options{Threshold: 0.8, Vectors: vecs})
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 || !reflect.DeepEqual(clusters[0].Members, []int{0, 1}) {
		t.Fatalf("got %+v, want alpha and beta together", clusters)
	}

	_, err = Cluster(texts, Options{Threshold: 0.8, Vectors: vecs[:2]})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("vector count mismatch: err = %v, want ErrInvalidArgument", err)
	}
}
