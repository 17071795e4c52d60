package models

// KnowledgeSnippet is a knowledge base entry. Score is relative to the query that produced it
// and is never stored.
type KnowledgeSnippet struct {
	ID       string  `json:"id" yaml:"id"`
	Title    string  `json:"title" yaml:"title"`
	Category string  `json:"category" yaml:"category"`
	Text     string  `json:"text" yaml:"text"`
	Score    float64 `json:"score,omitempty" yaml:"-"`
}
