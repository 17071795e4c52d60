package doubts

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/models"
)

// NoDiscussions is the summary and sole insight for a course without uploads.
const NoDiscussions = "No discussions found"

const (
	summaryTopics  = 3
	insightTopics  = 3
	summaryTimeout = 30 * time.Second
)

// keyword families behind topic-specific insights. Matching runs on lowercased words of the
// raw text, since several of these ("why", "how") are stop words to the analyzer.
var families = []struct {
	name   string
	words  []string
	advice string
}{
	{
		name:   "logistics",
		words:  []string{"exam", "exams", "midterm", "final", "quiz", "test", "deadline", "due", "submission", "submit", "grade", "grades", "marks", "assignment", "extension"},
		advice: "concern assessment logistics. Post one announcement with the dates, rules and submission steps",
	},
	{
		name:   "debugging",
		words:  []string{"error", "errors", "bug", "bugs", "crash", "crashes", "segfault", "exception", "compile", "compiler", "debug", "debugging", "wrong", "fails", "failing", "traceback"},
		advice: "are about errors and debugging. Share a common-mistakes guide or a debugging checklist",
	},
	{
		name:   "concept",
		words:  []string{"why", "how", "explain", "understand", "difference", "mean", "means", "intuition", "concept"},
		advice: "ask why or how the idea works. Add a worked example in the next lecture or tutorial",
	},
}

// Summarizer turns ranked clusters into an overall summary and instructor insights.
type Summarizer struct {
	llm    func() backend.Adapter
	logger *zap.Logger
	now    func() time.Time
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithSummaryLogger sets the logger.
func WithSummaryLogger(l *zap.Logger) SummarizerOption {
	return func(s *Summarizer) { s.logger = l }
}

// WithLLM lets the overall summary be written by the adapter that source returns at call time.
// Any failure falls back to the heuristic summary.
func WithLLM(source func() backend.Adapter) SummarizerOption {
	return func(s *Summarizer) { s.llm = source }
}

// NewSummarizer returns a Summarizer. Without WithLLM it is fully heuristic.
func NewSummarizer(opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize builds the SummaryResult for course from its message texts and their clusters.
func (s *Summarizer) Summarize(ctx context.Context, course string, texts []string, clusters []models.TopicCluster) *models.SummaryResult {
	res := &models.SummaryResult{
		CourseCode:    course,
		Topics:        clusters,
		Insights:      Insights(texts, clusters),
		TotalMessages: len(texts),
		GeneratedAt:   s.now().UTC(),
	}
	if res.Topics == nil {
		res.Topics = []models.TopicCluster{}
	}
	res.OverallSummary = HeuristicSummary(course, len(texts), clusters)
	if len(texts) > 0 && s.llm != nil {
		if text, err := s.llmSummary(ctx, course, len(texts), clusters); err != nil {
			s.logger.Warn("llm summary failed, using heuristic", zap.String("course_code", course), zap.Error(err))
		} else if text != "" {
			res.OverallSummary = text
		}
	}
	return res
}

func (s *Summarizer) llmSummary(ctx context.Context, course string, total int, clusters []models.TopicCluster) (string, error) {
	a := s.llm()
	if a == nil {
		return "", fmt.Errorf("%w: no backend configured", models.ErrBackendUnavailable)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Course %s received %d student questions, grouped into these topics:\n", course, total)
	for i, c := range clusters {
		if i == summaryTopics*2 {
			break
		}
		fmt.Fprintf(&b, "- %s (%d questions). Examples: %s\n", c.Label, c.Size, strings.Join(c.ExampleQuestions, " | "))
	}
	b.WriteString("Write a three-sentence summary for the instructor of what students are struggling with.")

	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()
	out, err := a.Complete(ctx, &backend.Request{
		System: "You summarize student discussion forums for course instructors. Be concrete and brief.",
		Prompt: b.String(),
	})
	return strings.TrimSpace(out), err
}

// HeuristicSummary describes the largest topics without any model.
func HeuristicSummary(course string, total int, clusters []models.TopicCluster) string {
	if total == 0 || len(clusters) == 0 {
		return NoDiscussions
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s students asked %d %s across %d %s.",
		course, total, plural(total, "question", "questions"), len(clusters), plural(len(clusters), "topic", "topics"))
	var top []string
	for _, c := range clusters {
		if c.Unclustered {
			continue
		}
		top = append(top, fmt.Sprintf("%q (%d)", c.Label, c.Size))
		if len(top) == summaryTopics {
			break
		}
	}
	if len(top) > 0 {
		b.WriteString(" Most discussed: " + strings.Join(top, ", ") + ".")
	}
	return b.String()
}

// Insights derives instructor recommendations from cluster sizes and wording. The first
// insight is always a size statement, so any non-empty input yields at least one.
func Insights(texts []string, clusters []models.TopicCluster) []string {
	total := len(texts)
	if total == 0 || len(clusters) == 0 {
		return []string{NoDiscussions}
	}
	var out []string
	lead := clusters[0]
	if lead.Unclustered || lead.Size == 1 {
		out = append(out, fmt.Sprintf("%d %s spread over %d topics with no dominant theme; a short FAQ may cover them.",
			total, plural(total, "question", "questions"), len(clusters)))
	} else {
		out = append(out, fmt.Sprintf("The largest topic, %q, covers %d of %d questions (%d%%). Add a worked example on it.",
			lead.Label, lead.Size, total, percent(lead.Size, total)))
	}

	seen := map[string]bool{}
	n := 0
	for _, c := range clusters {
		if n == insightTopics {
			break
		}
		if c.Unclustered {
			continue
		}
		n++
		words := wordSet(texts, c.Members)
		for _, f := range families {
			if seen[f.name] || !hasAny(words, f.words) {
				continue
			}
			seen[f.name] = true
			out = append(out, fmt.Sprintf("Questions in %q %s.", c.Label, f.advice))
		}
	}

	for _, c := range clusters {
		if c.Unclustered {
			out = append(out, fmt.Sprintf("%d %s had no recognizable topic words; review them by hand.",
				c.Size, plural(c.Size, "message", "messages")))
		}
	}
	return out
}

func wordSet(texts []string, members []int) map[string]bool {
	set := map[string]bool{}
	for _, m := range members {
		if m < 0 || m >= len(texts) {
			continue
		}
		for _, w := range strings.FieldsFunc(strings.ToLower(texts[m]), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			set[w] = true
		}
	}
	return set
}

func hasAny(set map[string]bool, words []string) bool {
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return (part*100 + total/2) / total
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
