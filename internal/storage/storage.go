// Package storage defines persistence for conversations and doubt uploads.
package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/models"
)

// Storage defines conversation and doubt upload persistence operations.
type Storage interface {
	// Conversation operations
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Doubt upload operations. ListUploads returns a course's uploads oldest first.
	CreateUpload(ctx context.Context, upload *models.DoubtUpload) error
	GetUpload(ctx context.Context, id string) (*models.DoubtUpload, error)
	ListUploads(ctx context.Context, courseCode string) ([]*models.DoubtUpload, error)

	Close() error
}

// New returns the Storage selected by cfg.Driver.
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg.DatabasePath)
	case "redis":
		return NewRedisStorage(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
