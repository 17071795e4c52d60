// Package conversation holds chat session state keyed by conversation id, with TTL eviction,
// per-conversation turn serialization, and optional write-through persistence.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/models"
	"github.com/hyperjump/sensei/internal/storage"
)

// entry is one cached conversation. turn admits a single chat turn at a time; mu guards conv so
// history reads never wait for a long-running stream.
type entry struct {
	turn chan struct{}
	mu   sync.RWMutex
	conv *models.Conversation
	pins int // guarded by Store.mu
}

func newEntry(conv *models.Conversation) *entry {
	return &entry{turn: make(chan struct{}, 1), conv: conv}
}

// Store owns conversation lifetime. Idle conversations expire after the configured TTL unless
// a turn has them pinned.
type Store struct {
	cache      *cache.Cache
	storage    storage.Storage
	maxHistory int
	mu         sync.Mutex
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for debug output (creation, eviction, reloads).
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithStorage enables write-through persistence. Evicted conversations are reloaded from st on
// next access. The caller keeps ownership of st.
func WithStorage(st storage.Storage) Option {
	return func(s *Store) { s.storage = st }
}

// NewStore creates a Store with cfg's TTL, cleanup interval and history cap.
func NewStore(cfg config.ConversationConfig, opts ...Option) *Store {
	s := &Store{
		cache:      cache.New(cfg.TTL, cfg.CleanupInterval),
		maxHistory: cfg.MaxHistory,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache.OnEvicted(func(id string, _ interface{}) {
		s.logger.Debug("conversation evicted", zap.String("conversation_id", id))
	})
	return s
}

// Create starts a new, empty conversation with a generated id.
func (s *Store) Create(ctx context.Context, mode models.Mode, userID string) (*models.Conversation, error) {
	now := s.now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Mode:      mode,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.storage != nil {
		if err := s.storage.SaveConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("persist conversation: %w", err)
		}
	}
	s.mu.Lock()
	s.cache.Set(conv.ID, newEntry(conv), cache.DefaultExpiration)
	s.mu.Unlock()
	s.logger.Debug("conversation created", zap.String("conversation_id", conv.ID), zap.String("mode", string(mode)))
	return conv.Clone(), nil
}

// GetOrCreate returns the conversation with id, or creates one when id is empty.
// An unknown explicit id fails with models.ErrConversationNotFound.
func (s *Store) GetOrCreate(ctx context.Context, id string, mode models.Mode, userID string) (*models.Conversation, error) {
	if id == "" {
		return s.Create(ctx, mode, userID)
	}
	return s.Get(ctx, id)
}

// Get returns a copy of the conversation with id.
func (s *Store) Get(ctx context.Context, id string) (*models.Conversation, error) {
	e, err := s.lookup(ctx, id, false)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conv.Clone(), nil
}

// History returns the ordered messages of conversation id.
func (s *Store) History(ctx context.Context, id string) ([]models.Message, error) {
	e, err := s.lookup(ctx, id, false)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.CloneMessages(e.conv.Messages), nil
}

// Acquire pins conversation id against eviction and waits for exclusive turn access.
// The returned release func must be called exactly once when the turn (including any stream)
// ends.
func (s *Store) Acquire(ctx context.Context, id string) (func(), error) {
	e, err := s.lookup(ctx, id, true)
	if err != nil {
		return nil, err
	}

	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		s.unpin(id, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.turn
			s.unpin(id, e)
		})
	}, nil
}

func (s *Store) unpin(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.pins--
	if e.pins > 0 {
		return
	}
	// Only restore the TTL if the entry was not discarded or replaced meanwhile.
	if cur, ok := s.cache.Get(id); ok && cur.(*entry) == e {
		s.cache.Set(id, e, cache.DefaultExpiration)
	}
}

// Append adds msgs to conversation id as one unit: either all are stored or none are.
// A non-empty mode replaces the conversation's active mode in the same update.
func (s *Store) Append(ctx context.Context, id string, mode models.Mode, msgs ...models.Message) error {
	e, err := s.lookup(ctx, id, false)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.conv.Clone()
	next.Messages = append(next.Messages, models.CloneMessages(msgs)...)
	if s.maxHistory > 0 && len(next.Messages) > s.maxHistory {
		next.Messages = next.Messages[len(next.Messages)-s.maxHistory:]
	}
	if mode != "" {
		next.Mode = mode
	}
	next.UpdatedAt = s.now()
	if s.storage != nil {
		if err := s.storage.SaveConversation(ctx, next); err != nil {
			return fmt.Errorf("persist conversation: %w", err)
		}
	}
	e.conv = next
	return nil
}

// Clear empties the history of conversation id and keeps the id usable.
// Clearing an unknown, empty or already-cleared conversation succeeds.
func (s *Store) Clear(ctx context.Context, id string) error {
	e, err := s.lookup(ctx, id, false)
	if err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			return nil
		}
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conv.Messages) == 0 {
		return nil
	}
	next := e.conv.Clone()
	next.Messages = []models.Message{}
	next.UpdatedAt = s.now()
	if s.storage != nil {
		if err := s.storage.SaveConversation(ctx, next); err != nil {
			return fmt.Errorf("persist conversation: %w", err)
		}
	}
	e.conv = next
	return nil
}

// Discard forgets conversation id entirely. Used to roll back a conversation created by a turn
// that then failed.
func (s *Store) Discard(ctx context.Context, id string) error {
	s.mu.Lock()
	s.cache.Delete(id)
	s.mu.Unlock()
	if s.storage != nil {
		return s.storage.DeleteConversation(ctx, id)
	}
	return nil
}

// Len returns the number of conversations held in memory.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Close drops every in-memory conversation. Persisted conversations are untouched.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Flush()
	return nil
}

// lookup finds id in the cache, falling back to storage. The storage read runs without s.mu
// held, so a slow load delays only callers of that id. Every hit refreshes the TTL of unpinned
// entries; with pin set the entry is pinned instead.
func (s *Store) lookup(ctx context.Context, id string, pin bool) (*entry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: conversation id is required", models.ErrInvalidArgument)
	}
	s.mu.Lock()
	e, ok := s.cachedLocked(id, pin)
	s.mu.Unlock()
	if ok {
		return e, nil
	}
	if s.storage == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrConversationNotFound, id)
	}
	conv, err := s.storage.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have loaded or created it while storage was read.
	if e, ok := s.cachedLocked(id, pin); ok {
		return e, nil
	}
	e = newEntry(conv)
	if pin {
		e.pins++
		s.cache.Set(id, e, cache.NoExpiration)
	} else {
		s.cache.Set(id, e, cache.DefaultExpiration)
	}
	s.logger.Debug("conversation reloaded", zap.String("conversation_id", id), zap.Int("messages", len(conv.Messages)))
	return e, nil
}

func (s *Store) cachedLocked(id string, pin bool) (*entry, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	switch {
	case pin:
		e.pins++
		s.cache.Set(id, e, cache.NoExpiration)
	case e.pins == 0:
		s.cache.Set(id, e, cache.DefaultExpiration)
	}
	return e, true
}
