package doubts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/embedding"
	"github.com/hyperjump/sensei/internal/metrics"
	"github.com/hyperjump/sensei/internal/models"
	"github.com/hyperjump/sensei/internal/storage"
)

const (
	defaultSource = "manual"
	defaultRole   = "student"
)

// UploadRequest is one batch of doubts for a course.
type UploadRequest struct {
	CourseCode string                `json:"course_code"`
	Source     string                `json:"source"`
	Messages   []models.DoubtMessage `json:"messages"`
}

// Service stores doubt uploads and recomputes topics, summaries and insights from them.
type Service struct {
	storage    storage.Storage
	summarizer *Summarizer
	cfg        config.DoubtsConfig
	embedder   embedding.Embedder
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithSummarizer replaces the heuristic-only summarizer.
func WithSummarizer(sum *Summarizer) ServiceOption {
	return func(s *Service) { s.summarizer = sum }
}

// WithEmbedder supplies vectors for clustering when cfg.UseEmbeddings is set.
func WithEmbedder(e embedding.Embedder) ServiceOption {
	return func(s *Service) { s.embedder = e }
}

// WithMetrics records upload and clustering metrics.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a Service over st.
func NewService(st storage.Storage, cfg config.DoubtsConfig, opts ...ServiceOption) *Service {
	s := &Service{
		storage: st,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.summarizer == nil {
		s.summarizer = NewSummarizer(WithSummaryLogger(s.logger))
	}
	return s
}

// Upload validates and stores a batch. Blank messages are dropped; a batch with none left is
// rejected.
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*models.DoubtUpload, error) {
	course := strings.TrimSpace(req.CourseCode)
	if course == "" {
		return nil, fmt.Errorf("%w: course_code is required", models.ErrInvalidArgument)
	}
	msgs := make([]models.DoubtMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		role := strings.TrimSpace(m.AuthorRole)
		if role == "" {
			role = defaultRole
		}
		msgs = append(msgs, models.DoubtMessage{AuthorRole: role, Text: text})
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: messages must contain at least one non-empty text", models.ErrInvalidArgument)
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = defaultSource
	}
	upload := &models.DoubtUpload{
		ID:         uuid.NewString(),
		CourseCode: course,
		Source:     source,
		Messages:   msgs,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.storage.CreateUpload(ctx, upload); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	s.metrics.Uploaded(len(msgs))
	s.logger.Info("doubts uploaded",
		zap.String("upload_id", upload.ID),
		zap.String("course_code", course),
		zap.String("source", source),
		zap.Int("messages", len(msgs)))
	return upload, nil
}

// texts returns every message of course in upload order.
func (s *Service) texts(ctx context.Context, course string) ([]string, error) {
	course = strings.TrimSpace(course)
	if course == "" {
		return nil, fmt.Errorf("%w: course_code is required", models.ErrInvalidArgument)
	}
	uploads, err := s.storage.ListUploads(ctx, course)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	var texts []string
	for _, u := range uploads {
		for _, m := range u.Messages {
			texts = append(texts, m.Text)
		}
	}
	return texts, nil
}

func (s *Service) cluster(ctx context.Context, texts []string) ([]models.TopicCluster, error) {
	start := time.Now()
	opts := Options{Threshold: s.cfg.SimilarityThreshold, MaxExamples: s.cfg.MaxExamples}
	if s.cfg.UseEmbeddings && s.embedder != nil && len(texts) > 0 {
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.logger.Warn("embedding doubts failed, clustering on terms", zap.Error(err))
		} else {
			opts.Vectors = vecs
		}
	}
	clusters, err := Cluster(texts, opts)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveClustering(time.Since(start))
	return clusters, nil
}

// Summary clusters all of course's doubts and summarizes them. A course without uploads gets
// the NoDiscussions summary rather than an error.
func (s *Service) Summary(ctx context.Context, course string) (*models.SummaryResult, error) {
	texts, err := s.texts(ctx, course)
	if err != nil {
		return nil, err
	}
	clusters, err := s.cluster(ctx, texts)
	if err != nil {
		return nil, err
	}
	return s.summarizer.Summarize(ctx, strings.TrimSpace(course), texts, clusters), nil
}

// Topics returns the ranked clusters for course.
func (s *Service) Topics(ctx context.Context, course string) ([]models.TopicCluster, error) {
	texts, err := s.texts(ctx, course)
	if err != nil {
		return nil, err
	}
	return s.cluster(ctx, texts)
}

// Insights returns the instructor recommendations for course.
func (s *Service) Insights(ctx context.Context, course string) ([]string, error) {
	texts, err := s.texts(ctx, course)
	if err != nil {
		return nil, err
	}
	clusters, err := s.cluster(ctx, texts)
	if err != nil {
		return nil, err
	}
	return Insights(texts, clusters), nil
}

// GetUpload returns a stored upload by id.
func (s *Service) GetUpload(ctx context.Context, id string) (*models.DoubtUpload, error) {
	return s.storage.GetUpload(ctx, id)
}
