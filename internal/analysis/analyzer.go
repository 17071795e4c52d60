// Package analysis normalizes free text into stemmed terms using bleve's English analyzer.
package analysis

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bleveanalysis "github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
)

// Term is one analyzed token: its stem and the lowercased word it came from.
type Term struct {
	Stem    string
	Surface string
}

// Analyzer lowercases, drops English stop words and Porter-stems text.
// It is safe for concurrent use.
type Analyzer struct {
	analyze func([]byte) bleveanalysis.TokenStream
}

// New returns an Analyzer backed by bleve's "en" analyzer.
func New() (*Analyzer, error) {
	m := bleve.NewIndexMapping()
	a := m.AnalyzerNamed(en.AnalyzerName)
	if a == nil {
		return nil, fmt.Errorf("analyzer %q not registered", en.AnalyzerName)
	}
	return &Analyzer{analyze: a.Analyze}, nil
}

// Terms returns the analyzed terms of text in order of appearance, duplicates included.
func (a *Analyzer) Terms(text string) []Term {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	stream := a.analyze([]byte(text))
	terms := make([]Term, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		surface := string(tok.Term)
		if tok.Start >= 0 && tok.End <= len(text) && tok.Start < tok.End {
			surface = strings.ToLower(text[tok.Start:tok.End])
		}
		terms = append(terms, Term{Stem: string(tok.Term), Surface: surface})
	}
	return terms
}

// DistinctTerms returns the first occurrence of each stem in text, in order of appearance.
func (a *Analyzer) DistinctTerms(text string) []Term {
	terms := a.Terms(text)
	seen := make(map[string]struct{}, len(terms))
	out := make([]Term, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t.Stem]; ok {
			continue
		}
		seen[t.Stem] = struct{}{}
		out = append(out, t)
	}
	return out
}
