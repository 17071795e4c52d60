// Package doubts clusters student questions into topics and summarizes them for instructors.
package doubts

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/sensei/internal/analysis"
	"github.com/hyperjump/sensei/internal/models"
	"github.com/hyperjump/sensei/internal/vector"
)

const (
	labelKeywords      = 3
	defaultMaxExamples = 3
	unclusteredLabel   = "Unclustered"
)

// Options tune Cluster.
type Options struct {
	// Threshold is the minimum similarity, in (0, 1], for a message to join a cluster.
	Threshold float64
	// MaxExamples caps example questions per cluster. Values <= 0 mean 3.
	MaxExamples int
	// Vectors, when set, holds one embedding per text and switches similarity from term
	// overlap to cosine.
	Vectors [][]float32
}

var defaultAnalyzer = sync.OnceValues(analysis.New)

// message is one analyzed text.
type message struct {
	text     string
	stems    map[string]struct{}
	order    []analysis.Term // first occurrence of each stem, in order
	vector   []float32
	hasTerms bool
}

// Cluster groups texts by similarity. It is a pure function of its input: the same texts and
// options always give the same clusters in the same order.
//
// Each message joins the earlier cluster it is most similar to (single link: its best match
// among the members), provided that similarity reaches the threshold; ties go to the earlier
// cluster. Otherwise it starts a new cluster. Messages with no content words are collected in
// one cluster marked Unclustered. Clusters are ordered by size, largest first, then by their
// first member.
func Cluster(texts []string, opts Options) (clusters []models.TopicCluster, err error) {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold must be in (0, 1], got %v", models.ErrInvalidArgument, opts.Threshold)
	}
	if opts.Vectors != nil && len(opts.Vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", models.ErrInvalidArgument, len(opts.Vectors), len(texts))
	}
	if len(texts) == 0 {
		return []models.TopicCluster{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			clusters = nil
			err = fmt.Errorf("%w: %v", models.ErrClusteringFailed, r)
		}
	}()
	an, err := defaultAnalyzer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrClusteringFailed, err)
	}

	msgs := make([]message, len(texts))
	for i, text := range texts {
		msgs[i] = analyze(an, text)
		if opts.Vectors != nil {
			msgs[i].vector = opts.Vectors[i]
		}
	}
	sim := func(a, b int) float64 {
		if opts.Vectors != nil {
			return vector.CosineSimilarity(msgs[a].vector, msgs[b].vector)
		}
		return jaccard(msgs[a].stems, msgs[b].stems)
	}

	var groups [][]int
	var unclustered []int
	for i := range msgs {
		if !msgs[i].hasTerms {
			unclustered = append(unclustered, i)
			continue
		}
		best, bestSim := -1, 0.0
		for g, members := range groups {
			link := 0.0
			for _, m := range members {
				if s := sim(i, m); s > link {
					link = s
				}
			}
			if link >= opts.Threshold && link > bestSim {
				best, bestSim = g, link
			}
		}
		if best < 0 {
			groups = append(groups, []int{i})
		} else {
			groups[best] = append(groups[best], i)
		}
	}

	maxExamples := opts.MaxExamples
	if maxExamples <= 0 {
		maxExamples = defaultMaxExamples
	}
	clusters = make([]models.TopicCluster, 0, len(groups)+1)
	for _, members := range groups {
		keywords := topKeywords(msgs, members, labelKeywords)
		clusters = append(clusters, models.TopicCluster{
			Label:            strings.Join(keywords, ", "),
			Keywords:         keywords,
			Members:          members,
			Size:             len(members),
			ExampleQuestions: examples(msgs, members, sim, maxExamples),
		})
	}
	if len(unclustered) > 0 {
		clusters = append(clusters, models.TopicCluster{
			Label:            unclusteredLabel,
			Keywords:         []string{},
			Members:          unclustered,
			Size:             len(unclustered),
			ExampleQuestions: examples(msgs, unclustered, func(a, b int) float64 { return 0 }, maxExamples),
			Unclustered:      true,
		})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].Members[0] < clusters[j].Members[0]
	})
	return clusters, nil
}

func analyze(an *analysis.Analyzer, text string) message {
	m := message{text: strings.TrimSpace(text), stems: map[string]struct{}{}}
	m.order = an.DistinctTerms(text)
	for _, term := range m.order {
		m.stems[term.Stem] = struct{}{}
	}
	m.hasTerms = len(m.stems) > 0
	return m
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// topKeywords picks the stems used by the most members, ties broken by first appearance, and
// returns the first surface form seen for each.
func topKeywords(msgs []message, members []int, n int) []string {
	type kw struct {
		surface string
		count   int
		first   int
	}
	byStem := map[string]*kw{}
	seq := 0
	for _, m := range members {
		for _, term := range msgs[m].order {
			k, ok := byStem[term.Stem]
			if !ok {
				k = &kw{surface: term.Surface, first: seq}
				byStem[term.Stem] = k
				seq++
			}
			k.count++
		}
	}
	all := make([]*kw, 0, len(byStem))
	for _, k := range byStem {
		all = append(all, k)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].first < all[j].first
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]string, len(all))
	for i, k := range all {
		out[i] = k.surface
	}
	return out
}

// examples ranks members by mean similarity to the rest of the cluster (centrality), drops
// exact repeats, and returns up to n texts.
func examples(msgs []message, members []int, sim func(a, b int) float64, n int) []string {
	type scored struct {
		idx        int
		centrality float64
	}
	ranked := make([]scored, len(members))
	for i, m := range members {
		total := 0.0
		for _, other := range members {
			if other != m {
				total += sim(m, other)
			}
		}
		c := 1.0
		if len(members) > 1 {
			c = total / float64(len(members)-1)
		}
		ranked[i] = scored{idx: m, centrality: c}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].centrality != ranked[j].centrality {
			return ranked[i].centrality > ranked[j].centrality
		}
		return ranked[i].idx < ranked[j].idx
	})
	seen := map[string]struct{}{}
	out := make([]string, 0, n)
	for _, r := range ranked {
		if len(out) == n {
			break
		}
		text := msgs[r.idx].text
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup || text == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, text)
	}
	return out
}
