package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/sensei/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Message lists are stored as JSON columns.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		mode TEXT NOT NULL,
		messages TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS doubt_uploads (
		id TEXT PRIMARY KEY,
		course_code TEXT NOT NULL,
		source TEXT,
		messages TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_course ON doubt_uploads(course_code, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveConversation inserts or replaces a conversation.
func (s *SQLiteStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, mode, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id = excluded.user_id, mode = excluded.mode,
		   messages = excluded.messages, updated_at = excluded.updated_at`,
		conv.ID, conv.UserID, string(conv.Mode), string(messagesJSON), conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

// GetConversation returns a conversation by ID.
func (s *SQLiteStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	var userID sql.NullString
	var mode, messagesJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, mode, messages, created_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &userID, &mode, &messagesJSON, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	conv.UserID = userID.String
	conv.Mode = models.Mode(mode)
	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return &conv, nil
}

// DeleteConversation removes a conversation. Unknown ids are ignored.
func (s *SQLiteStorage) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// CreateUpload inserts a doubt upload.
func (s *SQLiteStorage) CreateUpload(ctx context.Context, upload *models.DoubtUpload) error {
	messagesJSON, err := json.Marshal(upload.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO doubt_uploads (id, course_code, source, messages, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		upload.ID, upload.CourseCode, upload.Source, string(messagesJSON), upload.CreatedAt,
	)
	return err
}

// GetUpload returns a doubt upload by ID.
func (s *SQLiteStorage) GetUpload(ctx context.Context, id string) (*models.DoubtUpload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, course_code, source, messages, created_at FROM doubt_uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrUploadNotFound, id)
	}
	return u, err
}

// ListUploads returns a course's uploads oldest first.
func (s *SQLiteStorage) ListUploads(ctx context.Context, courseCode string) ([]*models.DoubtUpload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_code, source, messages, created_at FROM doubt_uploads
		 WHERE course_code = ? ORDER BY created_at, rowid`, courseCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*models.DoubtUpload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*models.DoubtUpload, error) {
	var u models.DoubtUpload
	var source sql.NullString
	var messagesJSON string
	if err := row.Scan(&u.ID, &u.CourseCode, &source, &messagesJSON, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Source = source.String
	if err := json.Unmarshal([]byte(messagesJSON), &u.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &u, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
