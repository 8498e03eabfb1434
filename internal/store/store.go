// Package store is the persistence adapter: it serializes the domain
// collections to JSON under fixed keys of a kv.Store and re-hydrates
// them on load. Read failures degrade to built-in defaults so policy
// logic never sees a raw storage error; write failures propagate so
// callers can abort.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskvault/internal/domain"
	"taskvault/internal/kv"
)

// Fixed record keys.
const (
	KeyTasks         = "tasks"
	KeyCategories    = "categories"
	KeyUrgencyLevels = "urgencyLevels"
	KeySettings      = "settings"
	KeyTaskHistory   = "taskHistory"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	KV  kv.Store
	Log *zap.Logger
}

func New(store kv.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{KV: store, Log: log}
}

func (s *Store) LoadTasks(ctx context.Context) []domain.Task {
	var tasks []domain.Task
	if !s.loadJSON(ctx, KeyTasks, &tasks) {
		return []domain.Task{}
	}
	return tasks
}

func (s *Store) SaveTasks(ctx context.Context, tasks []domain.Task) error {
	return s.saveJSON(ctx, KeyTasks, tasks)
}

func (s *Store) LoadCategories(ctx context.Context, now time.Time) []domain.Category {
	var cats []domain.Category
	if !s.loadJSON(ctx, KeyCategories, &cats) {
		return DefaultCategories(now)
	}
	return cats
}

func (s *Store) SaveCategories(ctx context.Context, cats []domain.Category) error {
	return s.saveJSON(ctx, KeyCategories, cats)
}

func (s *Store) LoadUrgencyLevels(ctx context.Context, now time.Time) []domain.UrgencyLevel {
	var levels []domain.UrgencyLevel
	if !s.loadJSON(ctx, KeyUrgencyLevels, &levels) {
		return DefaultUrgencyLevels(now)
	}
	return levels
}

func (s *Store) SaveUrgencyLevels(ctx context.Context, levels []domain.UrgencyLevel) error {
	return s.saveJSON(ctx, KeyUrgencyLevels, levels)
}

// LoadSettings returns def when no settings record exists yet;
// settings are lazily defaulted on first read.
func (s *Store) LoadSettings(ctx context.Context, def domain.Settings) domain.Settings {
	var settings domain.Settings
	if !s.loadJSON(ctx, KeySettings, &settings) {
		return def
	}
	return settings
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	return s.saveJSON(ctx, KeySettings, settings)
}

func (s *Store) LoadHistory(ctx context.Context) []domain.TaskHistory {
	var history []domain.TaskHistory
	if !s.loadJSON(ctx, KeyTaskHistory, &history) {
		return []domain.TaskHistory{}
	}
	return history
}

func (s *Store) SaveHistory(ctx context.Context, history []domain.TaskHistory) error {
	return s.saveJSON(ctx, KeyTaskHistory, history)
}

// loadJSON reads and decodes one record. Returns false when the key
// is absent or unreadable; the caller substitutes defaults.
func (s *Store) loadJSON(ctx context.Context, key string, out any) bool {
	raw, ok, err := s.KV.Get(ctx, key)
	if err != nil {
		s.Log.Warn("storage read failed, using defaults", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.Log.Warn("storage record corrupt, using defaults", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.KV.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
