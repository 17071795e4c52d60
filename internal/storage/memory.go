package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/sensei/internal/models"
)

// MemoryStorage keeps everything in process memory. Used when no database is configured.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	uploads       map[string]*models.DoubtUpload
	byCourse      map[string][]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*models.Conversation),
		uploads:       make(map[string]*models.DoubtUpload),
		byCourse:      make(map[string][]string),
	}
}

// SaveConversation inserts or replaces a conversation.
func (m *MemoryStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv.Clone()
	return nil
}

// GetConversation returns a copy of the conversation with id.
func (m *MemoryStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrConversationNotFound, id)
	}
	return conv.Clone(), nil
}

// DeleteConversation removes a conversation. Unknown ids are ignored.
func (m *MemoryStorage) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
	return nil
}

// CreateUpload stores a new upload.
func (m *MemoryStorage) CreateUpload(ctx context.Context, upload *models.DoubtUpload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.uploads[upload.ID]; exists {
		return fmt.Errorf("upload already exists: %s", upload.ID)
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now()
	}
	cp := *upload
	cp.Messages = append([]models.DoubtMessage(nil), upload.Messages...)
	m.uploads[upload.ID] = &cp
	m.byCourse[upload.CourseCode] = append(m.byCourse[upload.CourseCode], upload.ID)
	return nil
}

// GetUpload returns the upload with id.
func (m *MemoryStorage) GetUpload(ctx context.Context, id string) (*models.DoubtUpload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUploadNotFound, id)
	}
	cp := *u
	return &cp, nil
}

// ListUploads returns a course's uploads in insertion order.
func (m *MemoryStorage) ListUploads(ctx context.Context, courseCode string) ([]*models.DoubtUpload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byCourse[courseCode]
	out := make([]*models.DoubtUpload, 0, len(ids))
	for _, id := range ids {
		cp := *m.uploads[id]
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op for MemoryStorage.
func (m *MemoryStorage) Close() error {
	return nil
}
