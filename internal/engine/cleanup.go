package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"taskvault/internal/domain"
	"taskvault/internal/events"
	"taskvault/internal/policy"
)

// ErrCleanupInProgress is returned when a cleanup run is requested
// while another one holds the lock.
var ErrCleanupInProgress = errors.New("cleanup already in progress")

// RunCleanup performs one full cleanup pass: reconcile overdue
// status, move expired tasks to history, purge expired history
// entries, stamp lastCleanup. Each task gets exactly one treatment
// per pass; a task marked overdue this pass is not also moved to
// history until a later pass.
//
// Persist order is history, then tasks, then settings. A crash after
// the history write leaves a duplicate-safe state: the task is in
// history and still active, and the next pass moves it again with a
// distinct entry id. Nothing is ever lost.
func (e *Engine) RunCleanup(ctx context.Context) (domain.CleanupResult, error) {
	if !e.cleanupMu.TryLock() {
		return domain.CleanupResult{}, ErrCleanupInProgress
	}
	defer e.cleanupMu.Unlock()

	now := e.now()
	settings := e.loadSettings(ctx, now)
	tasks := e.Store.LoadTasks(ctx)
	history := e.Store.LoadHistory(ctx)

	var result domain.CleanupResult
	remaining := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == domain.StatusPending && policy.IsOverdue(t, now) {
			t.Status = domain.StatusOverdue
			t.CompletedDate = nil
			t.UpdatedAt = now
			result.OverdueMarked++
			remaining = append(remaining, t)
			continue
		}
		if ok, reason := policy.EligibleForHistory(t, settings, now); ok {
			history = append(history, e.newHistoryEntry(t, now, reason, settings.HistoryRetentionMonths))
			switch reason {
			case domain.ReasonCompletedExpired:
				result.CompletedMovedToHistory++
			case domain.ReasonOverdueExpired:
				result.OverdueMovedToHistory++
			}
			continue
		}
		remaining = append(remaining, t)
	}

	kept := make([]domain.TaskHistory, 0, len(history))
	for _, h := range history {
		if policy.HistoryEntryExpired(h, now) {
			result.HistoryCleaned++
			continue
		}
		kept = append(kept, h)
	}

	if err := e.Store.SaveHistory(ctx, kept); err != nil {
		return result, err
	}
	if err := e.Store.SaveTasks(ctx, remaining); err != nil {
		return result, err
	}
	settings.LastCleanup = now
	if result.HistoryCleaned > 0 {
		settings.LastHistoryCleanup = now
	}
	if err := e.Store.SaveSettings(ctx, settings); err != nil {
		return result, err
	}

	e.Log.Info("cleanup run finished",
		zap.Int("overdue_marked", result.OverdueMarked),
		zap.Int("completed_moved", result.CompletedMovedToHistory),
		zap.Int("overdue_moved", result.OverdueMovedToHistory),
		zap.Int("history_cleaned", result.HistoryCleaned),
	)
	_ = e.Events.Append(ctx, "cleanup.run", "cleanup", "", events.Payload{
		"overdue_marked":  result.OverdueMarked,
		"completed_moved": result.CompletedMovedToHistory,
		"overdue_moved":   result.OverdueMovedToHistory,
		"history_cleaned": result.HistoryCleaned,
	})
	return result, nil
}

// MaybeRunScheduledCleanup checks the schedule gate and runs cleanup
// if it is due. Invoked once at startup; a frequency of zero disables
// it entirely. Returns whether a run happened.
func (e *Engine) MaybeRunScheduledCleanup(ctx context.Context) (bool, domain.CleanupResult, error) {
	now := e.now()
	settings := e.loadSettings(ctx, now)
	if !policy.ShouldRunCleanup(settings, now) {
		return false, domain.CleanupResult{}, nil
	}
	res, err := e.RunCleanup(ctx)
	if errors.Is(err, ErrCleanupInProgress) {
		return false, domain.CleanupResult{}, nil
	}
	return err == nil, res, err
}

// ArchiveCompleted moves every completed task to history immediately
// with reason cleanup, regardless of retention age.
func (e *Engine) ArchiveCompleted(ctx context.Context) (int, error) {
	now := e.now()
	settings := e.loadSettings(ctx, now)
	tasks := e.Store.LoadTasks(ctx)
	history := e.Store.LoadHistory(ctx)

	remaining := make([]domain.Task, 0, len(tasks))
	moved := 0
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted {
			history = append(history, e.newHistoryEntry(t, now, domain.ReasonCleanup, settings.HistoryRetentionMonths))
			moved++
			continue
		}
		remaining = append(remaining, t)
	}
	if moved == 0 {
		return 0, nil
	}
	if err := e.Store.SaveHistory(ctx, history); err != nil {
		return 0, err
	}
	if err := e.Store.SaveTasks(ctx, remaining); err != nil {
		return 0, err
	}
	_ = e.Events.Append(ctx, "tasks.archived", "task", "", events.Payload{"count": moved})
	return moved, nil
}
