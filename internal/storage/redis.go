package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/models"
)

// RedisStorage implements Storage on Redis with JSON values. Keys:
//
//	<prefix>conversation:<id>       conversation JSON
//	<prefix>upload:<id>             upload JSON
//	<prefix>course:<code>:uploads   list of upload ids, oldest first
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage connects to Redis and verifies the connection with PING.
func NewRedisStorage(cfg config.RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStorage{client: client, prefix: cfg.Prefix}, nil
}

func (r *RedisStorage) conversationKey(id string) string {
	return r.prefix + "conversation:" + id
}

func (r *RedisStorage) uploadKey(id string) string {
	return r.prefix + "upload:" + id
}

func (r *RedisStorage) courseKey(code string) string {
	return r.prefix + "course:" + code + ":uploads"
}

// SaveConversation inserts or replaces a conversation.
func (r *RedisStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return r.client.Set(ctx, r.conversationKey(conv.ID), data, 0).Err()
}

// GetConversation returns a conversation by ID.
func (r *RedisStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	val, err := r.client.Get(ctx, r.conversationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", models.ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var conv models.Conversation
	if err := json.Unmarshal(val, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return &conv, nil
}

// DeleteConversation removes a conversation. Unknown ids are ignored.
func (r *RedisStorage) DeleteConversation(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.conversationKey(id)).Err()
}

// CreateUpload stores the upload, refusing duplicates, then appends its id to the course list.
func (r *RedisStorage) CreateUpload(ctx context.Context, upload *models.DoubtUpload) error {
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now()
	}
	data, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("failed to marshal upload: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.uploadKey(upload.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("upload already exists: %s", upload.ID)
	}
	return r.client.RPush(ctx, r.courseKey(upload.CourseCode), upload.ID).Err()
}

// GetUpload returns a doubt upload by ID.
func (r *RedisStorage) GetUpload(ctx context.Context, id string) (*models.DoubtUpload, error) {
	val, err := r.client.Get(ctx, r.uploadKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", models.ErrUploadNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var u models.DoubtUpload
	if err := json.Unmarshal(val, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload: %w", err)
	}
	return &u, nil
}

// ListUploads returns a course's uploads oldest first. Ids whose upload key vanished are skipped.
func (r *RedisStorage) ListUploads(ctx context.Context, courseCode string) ([]*models.DoubtUpload, error) {
	ids, err := r.client.LRange(ctx, r.courseKey(courseCode), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.uploadKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	uploads := make([]*models.DoubtUpload, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var u models.DoubtUpload
		if err := json.Unmarshal([]byte(s), &u); err != nil {
			return nil, fmt.Errorf("failed to unmarshal upload: %w", err)
		}
		uploads = append(uploads, &u)
	}
	return uploads, nil
}

// Close closes the Redis client.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
