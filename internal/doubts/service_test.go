package doubts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/analysis"
	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/embedding"
	"github.com/hyperjump/sensei/internal/metrics"
	"github.com/hyperjump/sensei/internal/models"
	"github.com/hyperjump/sensei/internal/storage"
)

func testDoubtsConfig() config.DoubtsConfig {
	return config.DoubtsConfig{SimilarityThreshold: 0.25, MaxExamples: 3}
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *storage.MemoryStorage) {
	t.Helper()
	st := storage.NewMemoryStorage()
	opts = append([]ServiceOption{WithLogger(zap.NewNop())}, opts...)
	return NewService(st, testDoubtsConfig(), opts...), st
}

func upload(t *testing.T, s *Service, course string, texts ...string) *models.DoubtUpload {
	t.Helper()
	req := &UploadRequest{CourseCode: course}
	for _, text := range texts {
		req.Messages = append(req.Messages, models.DoubtMessage{Text: text})
	}
	u, err := s.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return u
}

func TestService_courseScenario(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	texts := []string{"How does DP recurrence work?", "Why do we use min() here?", "How to choose base cases?"}
	upload(t, s, "CS1010", texts...)

	topics, err := s.Topics(ctx, "CS1010")
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) == 0 {
		t.Fatal("expected at least one topic")
	}
	found := false
	for _, ex := range topics[0].ExampleQuestions {
		for _, text := range texts {
			if ex == text {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("examples %v contain no uploaded text", topics[0].ExampleQuestions)
	}

	insights, err := s.Insights(ctx, "CS1010")
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) == 0 || insights[0] == NoDiscussions {
		t.Errorf("insights = %v", insights)
	}

	sum, err := s.Summary(ctx, "CS1010")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalMessages != 3 || sum.CourseCode != "CS1010" || sum.OverallSummary == NoDiscussions {
		t.Errorf("summary = %+v", sum)
	}
}

func TestService_unknownCourse(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sum, err := s.Summary(ctx, "CS9999")
	if err != nil {
		t.Fatal(err)
	}
	if sum.OverallSummary != NoDiscussions || len(sum.Topics) != 0 || sum.TotalMessages != 0 {
		t.Errorf("summary = %+v", sum)
	}
	insights, err := s.Insights(ctx, "CS9999")
	if err != nil {
		t.Fatal(err)
	}
	if len(insights) != 1 || insights[0] != NoDiscussions {
		t.Errorf("insights = %v", insights)
	}
	topics, err := s.Topics(ctx, "CS9999")
	if err != nil || len(topics) != 0 {
		t.Errorf("topics = %v, err = %v", topics, err)
	}
}

func TestService_uploadValidation(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	cases := []*UploadRequest{
		{CourseCode: "  ", Messages: []models.DoubtMessage{{Text: "q"}}},
		{CourseCode: "CS1010"},
		{CourseCode: "CS1010", Messages: []models.DoubtMessage{{Text: "  "}, {Text: ""}}},
	}
	for i, req := range cases {
		if _, err := s.Upload(ctx, req); !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("case %d: err = %v, want ErrInvalidArgument", i, err)
		}
	}
	uploads, _ := st.ListUploads(ctx, "CS1010")
	if len(uploads) != 0 {
		t.Errorf("rejected uploads were stored: %d", len(uploads))
	}
	if _, err := s.Summary(ctx, " "); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("blank course summary err = %v", err)
	}
}

func TestService_uploadDefaultsAndTrims(t *testing.T) {
	s, _ := newTestService(t)
	u, err := s.Upload(context.Background(), &UploadRequest{
		CourseCode: " CS2040 ",
		Messages: []models.DoubtMessage{
			{Text: "  heap vs stack?  "},
			{Text: "   "},
			{AuthorRole: "ta", Text: "see lecture 4"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == "" || u.CourseCode != "CS2040" || u.Source != "manual" {
		t.Errorf("upload = %+v", u)
	}
	if len(u.Messages) != 2 {
		t.Fatalf("messages = %+v, want blank dropped", u.Messages)
	}
	if u.Messages[0].Text != "heap vs stack?" || u.Messages[0].AuthorRole != "student" {
		t.Errorf("first message = %+v", u.Messages[0])
	}
	if u.Messages[1].AuthorRole != "ta" {
		t.Errorf("explicit role lost: %+v", u.Messages[1])
	}

	got, err := s.GetUpload(context.Background(), u.ID)
	if err != nil || got.CourseCode != "CS2040" {
		t.Errorf("GetUpload = %+v, %v", got, err)
	}
}

func TestService_uploadsAccumulate(t *testing.T) {
	s, _ := newTestService(t)
	upload(t, s, "CS1010", "linked list segfault on delete")
	upload(t, s, "CS1010", "segfault freeing linked list")
	upload(t, s, "CS2040", "AVL rotations")

	sum, err := s.Summary(context.Background(), "CS1010")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalMessages != 2 {
		t.Errorf("total = %d, want uploads of CS1010 only", sum.TotalMessages)
	}
	if len(sum.Topics) != 1 || sum.Topics[0].Size != 2 {
		t.Errorf("topics = %+v, want both uploads in one topic", sum.Topics)
	}
}

func TestService_embeddingsAndMetrics(t *testing.T) {
	an, err := analysis.New()
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	st := storage.NewMemoryStorage()
	cfg := testDoubtsConfig()
	cfg.UseEmbeddings = true
	s := NewService(st, cfg,
		WithEmbedder(embedding.NewHashingEmbedder(64, an)),
		WithMetrics(m))

	upload(t, s, "CS1010", "binary search bounds", "binary search off by one")
	if got := testutil.ToFloat64(m.DoubtUploads); got != 1 {
		t.Errorf("uploads metric = %v", got)
	}
	if got := testutil.ToFloat64(m.DoubtMessages); got != 2 {
		t.Errorf("messages metric = %v", got)
	}
	topics, err := s.Topics(context.Background(), "CS1010")
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, c := range topics {
		total += c.Size
	}
	if total != 2 {
		t.Errorf("topics cover %d messages", total)
	}
	if !strings.Contains(topics[0].Label, "binary") {
		t.Errorf("label = %q", topics[0].Label)
	}
}
