// Package engine exposes the public operations of the task core:
// task/category/urgency CRUD, settings, the cleanup orchestrator and
// the startup schedule gate. All state lives behind the persistence
// adapter; the engine itself only holds a clock, a logger and the
// lock that keeps cleanup runs from interleaving.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskvault/internal/config"
	"taskvault/internal/domain"
	"taskvault/internal/events"
	"taskvault/internal/policy"
	"taskvault/internal/store"
)

var ErrNotFound = store.ErrNotFound

type Engine struct {
	Store  *store.Store
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Log    *zap.Logger

	cleanupMu sync.Mutex
}

func New(st *store.Store, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		Store:  st,
		Config: cfg,
		Now:    time.Now,
		Log:    zap.NewNop(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// --- tasks ---

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	CategoryID  string
	Urgency     string
	StartDate   *time.Time
	DueDate     *time.Time
	Subtasks    []string
}

func (e *Engine) AddTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, errors.New("title is required")
	}
	now := e.now()
	urgency := opts.Urgency
	if urgency == "" {
		urgency = "medium"
	}
	t := domain.Task{
		ID:          uuid.New().String(),
		Title:       opts.Title,
		Description: opts.Description,
		CategoryID:  opts.CategoryID,
		Urgency:     urgency,
		Status:      domain.StatusPending,
		StartDate:   opts.StartDate,
		DueDate:     opts.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
		Subtasks:    []domain.Subtask{},
	}
	for _, title := range opts.Subtasks {
		if strings.TrimSpace(title) == "" {
			continue
		}
		t.Subtasks = append(t.Subtasks, domain.Subtask{
			ID:        uuid.New().String(),
			Title:     title,
			CreatedAt: now,
		})
	}
	tasks := e.Store.LoadTasks(ctx)
	tasks = append(tasks, t)
	if err := e.Store.SaveTasks(ctx, tasks); err != nil {
		return domain.Task{}, err
	}
	_ = e.Events.Append(ctx, "task.created", "task", t.ID, events.Payload{"title": t.Title, "urgency": t.Urgency})
	return t, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	for _, t := range e.Store.LoadTasks(ctx) {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, ErrNotFound
}

// TaskUpdateOptions encapsulates a partial task update. Nil pointers
// leave the field untouched; ClearDueDate and friends clear it.
type TaskUpdateOptions struct {
	Title          *string
	Description    *string
	CategoryID     *string
	Urgency        *string
	Status         *string
	StartDate      *time.Time
	ClearStartDate bool
	DueDate        *time.Time
	ClearDueDate   bool
}

// UpdateTask applies a partial update and bumps updatedAt. An unknown
// id is a logged no-op reported as ErrNotFound; callers decide how
// loud to be about it.
func (e *Engine) UpdateTask(ctx context.Context, id string, opts TaskUpdateOptions) (domain.Task, error) {
	tasks := e.Store.LoadTasks(ctx)
	idx := -1
	for i := range tasks {
		if tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		e.Log.Warn("update for unknown task", zap.String("task_id", id))
		return domain.Task{}, ErrNotFound
	}
	now := e.now()
	t := tasks[idx]
	prevStatus := t.Status
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return t, errors.New("title is required")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.CategoryID != nil {
		t.CategoryID = *opts.CategoryID
	}
	if opts.Urgency != nil {
		t.Urgency = *opts.Urgency
	}
	if opts.ClearStartDate {
		t.StartDate = nil
	} else if opts.StartDate != nil {
		t.StartDate = opts.StartDate
	}
	if opts.ClearDueDate {
		t.DueDate = nil
	} else if opts.DueDate != nil {
		t.DueDate = opts.DueDate
	}
	if opts.Status != nil && *opts.Status != t.Status {
		if err := e.applyStatus(&t, *opts.Status, now); err != nil {
			return t, err
		}
	}
	t.UpdatedAt = now
	tasks[idx] = t
	if err := e.Store.SaveTasks(ctx, tasks); err != nil {
		return t, err
	}
	_ = e.Events.Append(ctx, "task.updated", "task", t.ID, events.Payload{
		"from_status": prevStatus,
		"to_status":   t.Status,
	})
	return t, nil
}

// applyStatus transitions the cached status while preserving the
// completedDate invariant: set on entering completed, cleared on
// leaving it.
func (e *Engine) applyStatus(t *domain.Task, status string, now time.Time) error {
	switch status {
	case domain.StatusPending:
		t.CompletedDate = nil
	case domain.StatusCompleted:
		completed := now
		t.CompletedDate = &completed
	case domain.StatusOverdue:
		if t.DueDate == nil {
			return errors.New("cannot mark overdue without a due date")
		}
		t.CompletedDate = nil
	default:
		return fmt.Errorf("unknown status %s", status)
	}
	t.Status = status
	return nil
}

// CompleteTask marks a task completed, stamping completedDate.
func (e *Engine) CompleteTask(ctx context.Context, id string) (domain.Task, error) {
	status := domain.StatusCompleted
	return e.UpdateTask(ctx, id, TaskUpdateOptions{Status: &status})
}

// DeleteTask removes a task from the active list and records it in
// history with reason manual_deletion. History is persisted before
// the shrunk task list so a crash between the two writes can at worst
// duplicate, never lose.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	tasks := e.Store.LoadTasks(ctx)
	idx := -1
	for i := range tasks {
		if tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		e.Log.Warn("delete for unknown task", zap.String("task_id", id))
		return ErrNotFound
	}
	now := e.now()
	settings := e.loadSettings(ctx, now)
	history := e.Store.LoadHistory(ctx)
	history = append(history, e.newHistoryEntry(tasks[idx], now, domain.ReasonManualDeletion, settings.HistoryRetentionMonths))
	if err := e.Store.SaveHistory(ctx, history); err != nil {
		return err
	}
	remaining := append(tasks[:idx:idx], tasks[idx+1:]...)
	if err := e.Store.SaveTasks(ctx, remaining); err != nil {
		return err
	}
	_ = e.Events.Append(ctx, "task.deleted", "task", id, events.Payload{"reason": domain.ReasonManualDeletion})
	return nil
}

// AddSubtask appends a subtask and bumps the parent's updatedAt.
func (e *Engine) AddSubtask(ctx context.Context, taskID, title string) (domain.Task, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Task{}, errors.New("subtask title is required")
	}
	return e.mutateTask(ctx, taskID, func(t *domain.Task, now time.Time) error {
		t.Subtasks = append(t.Subtasks, domain.Subtask{
			ID:        uuid.New().String(),
			Title:     title,
			CreatedAt: now,
		})
		return nil
	})
}

// ToggleSubtask flips a subtask's completed flag.
func (e *Engine) ToggleSubtask(ctx context.Context, taskID, subtaskID string) (domain.Task, error) {
	return e.mutateTask(ctx, taskID, func(t *domain.Task, _ time.Time) error {
		for i := range t.Subtasks {
			if t.Subtasks[i].ID == subtaskID {
				t.Subtasks[i].Completed = !t.Subtasks[i].Completed
				return nil
			}
		}
		return ErrNotFound
	})
}

func (e *Engine) mutateTask(ctx context.Context, id string, fn func(*domain.Task, time.Time) error) (domain.Task, error) {
	tasks := e.Store.LoadTasks(ctx)
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		now := e.now()
		if err := fn(&tasks[i], now); err != nil {
			return tasks[i], err
		}
		tasks[i].UpdatedAt = now
		if err := e.Store.SaveTasks(ctx, tasks); err != nil {
			return tasks[i], err
		}
		return tasks[i], nil
	}
	e.Log.Warn("mutation for unknown task", zap.String("task_id", id))
	return domain.Task{}, ErrNotFound
}

// --- categories ---

func (e *Engine) Categories(ctx context.Context) []domain.Category {
	return e.Store.LoadCategories(ctx, e.now())
}

func (e *Engine) AddCategory(ctx context.Context, name, color string) (domain.Category, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Category{}, errors.New("name is required")
	}
	now := e.now()
	cats := e.Store.LoadCategories(ctx, now)
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return domain.Category{}, fmt.Errorf("category %s already exists", c.Name)
		}
	}
	cat := domain.Category{ID: uuid.New().String(), Name: name, Color: color, CreatedAt: now}
	cats = append(cats, cat)
	if err := e.Store.SaveCategories(ctx, cats); err != nil {
		return domain.Category{}, err
	}
	_ = e.Events.Append(ctx, "category.created", "category", cat.ID, events.Payload{"name": cat.Name})
	return cat, nil
}

func (e *Engine) UpdateCategory(ctx context.Context, id string, name, color *string) (domain.Category, error) {
	now := e.now()
	cats := e.Store.LoadCategories(ctx, now)
	for i := range cats {
		if cats[i].ID != id {
			continue
		}
		if name != nil {
			for _, other := range cats {
				if other.ID != id && strings.EqualFold(other.Name, *name) {
					return cats[i], fmt.Errorf("category %s already exists", other.Name)
				}
			}
			cats[i].Name = *name
		}
		if color != nil {
			cats[i].Color = *color
		}
		if err := e.Store.SaveCategories(ctx, cats); err != nil {
			return cats[i], err
		}
		return cats[i], nil
	}
	e.Log.Warn("update for unknown category", zap.String("category_id", id))
	return domain.Category{}, ErrNotFound
}

// DeleteCategory removes the category only. Tasks referencing it keep
// their dangling categoryId and resolve to the neutral fallback.
func (e *Engine) DeleteCategory(ctx context.Context, id string) error {
	now := e.now()
	cats := e.Store.LoadCategories(ctx, now)
	kept := cats[:0]
	found := false
	for _, c := range cats {
		if c.ID == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		e.Log.Warn("delete for unknown category", zap.String("category_id", id))
		return ErrNotFound
	}
	if err := e.Store.SaveCategories(ctx, kept); err != nil {
		return err
	}
	_ = e.Events.Append(ctx, "category.deleted", "category", id, nil)
	return nil
}

// --- urgency levels ---

func (e *Engine) UrgencyLevels(ctx context.Context) []domain.UrgencyLevel {
	return e.Store.LoadUrgencyLevels(ctx, e.now())
}

// AddUrgencyLevel appends a level ranked after every existing one:
// priority is max(existing)+1, lower numbers being more urgent.
func (e *Engine) AddUrgencyLevel(ctx context.Context, name, color string) (domain.UrgencyLevel, error) {
	if strings.TrimSpace(name) == "" {
		return domain.UrgencyLevel{}, errors.New("name is required")
	}
	now := e.now()
	levels := e.Store.LoadUrgencyLevels(ctx, now)
	maxPriority := 0
	for _, l := range levels {
		if strings.EqualFold(l.Name, name) {
			return domain.UrgencyLevel{}, fmt.Errorf("urgency level %s already exists", l.Name)
		}
		if l.Priority > maxPriority {
			maxPriority = l.Priority
		}
	}
	level := domain.UrgencyLevel{
		ID:        uuid.New().String(),
		Name:      name,
		Color:     color,
		Priority:  maxPriority + 1,
		CreatedAt: now,
	}
	levels = append(levels, level)
	if err := e.Store.SaveUrgencyLevels(ctx, levels); err != nil {
		return domain.UrgencyLevel{}, err
	}
	_ = e.Events.Append(ctx, "urgency.created", "urgency", level.ID, events.Payload{"name": level.Name, "priority": level.Priority})
	return level, nil
}

func (e *Engine) UpdateUrgencyLevel(ctx context.Context, id string, name, color *string, priority *int) (domain.UrgencyLevel, error) {
	now := e.now()
	levels := e.Store.LoadUrgencyLevels(ctx, now)
	for i := range levels {
		if levels[i].ID != id {
			continue
		}
		if name != nil {
			for _, other := range levels {
				if other.ID != id && strings.EqualFold(other.Name, *name) {
					return levels[i], fmt.Errorf("urgency level %s already exists", other.Name)
				}
			}
			levels[i].Name = *name
		}
		if color != nil {
			levels[i].Color = *color
		}
		if priority != nil {
			levels[i].Priority = *priority
		}
		if err := e.Store.SaveUrgencyLevels(ctx, levels); err != nil {
			return levels[i], err
		}
		return levels[i], nil
	}
	e.Log.Warn("update for unknown urgency level", zap.String("urgency_id", id))
	return domain.UrgencyLevel{}, ErrNotFound
}

// DeleteUrgencyLevel removes the level; tasks keep their urgency key
// and degrade to the neutral fallback on display.
func (e *Engine) DeleteUrgencyLevel(ctx context.Context, id string) error {
	now := e.now()
	levels := e.Store.LoadUrgencyLevels(ctx, now)
	kept := levels[:0]
	found := false
	for _, l := range levels {
		if l.ID == id {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		e.Log.Warn("delete for unknown urgency level", zap.String("urgency_id", id))
		return ErrNotFound
	}
	if err := e.Store.SaveUrgencyLevels(ctx, kept); err != nil {
		return err
	}
	_ = e.Events.Append(ctx, "urgency.deleted", "urgency", id, nil)
	return nil
}

// --- settings ---

func (e *Engine) Settings(ctx context.Context) domain.Settings {
	return e.loadSettings(ctx, e.now())
}

func (e *Engine) loadSettings(ctx context.Context, now time.Time) domain.Settings {
	return e.Store.LoadSettings(ctx, e.Config.Settings(now))
}

func (e *Engine) UpdateSettings(ctx context.Context, s domain.Settings) (domain.Settings, error) {
	if s.CompletedTaskRetentionDays < 0 || s.OverdueTaskRetentionDays < 0 ||
		s.HistoryRetentionMonths < 0 || s.HistoryCleanupFrequencyDays < 0 || s.CleanupFrequencyDays < 0 {
		return s, errors.New("retention and frequency values must be >= 0")
	}
	if err := e.Store.SaveSettings(ctx, s); err != nil {
		return s, err
	}
	_ = e.Events.Append(ctx, "settings.updated", "settings", "", events.Payload{
		"completed_task_retention_days": s.CompletedTaskRetentionDays,
		"overdue_task_retention_days":   s.OverdueTaskRetentionDays,
		"history_retention_months":      s.HistoryRetentionMonths,
		"cleanup_frequency_days":        s.CleanupFrequencyDays,
	})
	return s, nil
}

// --- history ---

func (e *Engine) History(ctx context.Context) []domain.TaskHistory {
	return e.Store.LoadHistory(ctx)
}

// newHistoryEntry snapshots a task at deletion time. The id combines
// task id and deletion instant so reused task ids stay unique.
func (e *Engine) newHistoryEntry(t domain.Task, deletedAt time.Time, reason string, retentionMonths int) domain.TaskHistory {
	return domain.TaskHistory{
		ID:             fmt.Sprintf("%s-%d", t.ID, deletedAt.UnixMilli()),
		Task:           t,
		DeletedAt:      deletedAt,
		DeletionReason: reason,
		RetentionUntil: policy.RetentionUntil(deletedAt, retentionMonths),
	}
}
