package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskvault/internal/config"
	"taskvault/internal/domain"
	"taskvault/internal/kv"
	"taskvault/internal/store"
)

type testEnv struct {
	engine *Engine
	mem    *kv.Memory
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := kv.NewMemory()
	env := &testEnv{
		mem: mem,
		now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	env.engine = New(store.New(mem, nil), config.Default())
	env.engine.Now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) setNow(t time.Time) { env.now = t }

func ptrTime(t time.Time) *time.Time { return &t }

func TestAddAndGetTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.AddTask(ctx, TaskCreateOptions{
		Title:      "file taxes",
		CategoryID: "finance",
		Urgency:    "high",
		DueDate:    ptrTime(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)),
		Subtasks:   []string{"gather receipts", "fill forms"},
	})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", created.Status)
	}
	if len(created.Subtasks) != 2 {
		t.Fatalf("subtasks = %d, want 2", len(created.Subtasks))
	}

	got, err := env.engine.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "file taxes" || got.Urgency != "high" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestAddTaskRequiresTitle(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.AddTask(context.Background(), TaskCreateOptions{Title: "  "}); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestAddTaskDefaultsUrgency(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.engine.AddTask(context.Background(), TaskCreateOptions{Title: "walk"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if created.Urgency != "medium" {
		t.Fatalf("urgency = %s, want medium", created.Urgency)
	}
}

func TestCompleteTaskStampsCompletedDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "review PR"})

	env.setNow(env.now.Add(2 * time.Hour))
	done, err := env.engine.CompleteTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.CompletedDate == nil || !done.CompletedDate.Equal(env.now) {
		t.Fatalf("completedDate = %v, want %v", done.CompletedDate, env.now)
	}
	if !done.UpdatedAt.Equal(env.now) {
		t.Fatalf("updatedAt not bumped: %v", done.UpdatedAt)
	}
}

func TestReopenClearsCompletedDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "reopenable"})
	if _, err := env.engine.CompleteTask(ctx, created.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	status := domain.StatusPending
	got, err := env.engine.UpdateTask(ctx, created.ID, TaskUpdateOptions{Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.CompletedDate != nil {
		t.Fatalf("completedDate should clear on reopen, got %v", got.CompletedDate)
	}
}

func TestUpdateUnknownTaskIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	title := "x"
	_, err := env.engine.UpdateTask(context.Background(), "missing", TaskUpdateOptions{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTaskMovesToHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "to delete"})

	if err := env.engine.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := env.engine.GetTask(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("task still retrievable after delete")
	}
	history := env.engine.History(ctx)
	if len(history) != 1 {
		t.Fatalf("history = %d entries, want 1", len(history))
	}
	entry := history[0]
	if entry.DeletionReason != domain.ReasonManualDeletion {
		t.Fatalf("reason = %s, want manual_deletion", entry.DeletionReason)
	}
	if entry.Task.Title != "to delete" {
		t.Fatalf("snapshot title = %s", entry.Task.Title)
	}
	want := env.now.AddDate(0, 3, 0)
	if !entry.RetentionUntil.Equal(want) {
		t.Fatalf("retentionUntil = %v, want %v", entry.RetentionUntil, want)
	}
}

func TestSubtaskToggle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "parent"})

	withSub, err := env.engine.AddSubtask(ctx, created.ID, "child")
	if err != nil {
		t.Fatalf("AddSubtask: %v", err)
	}
	subID := withSub.Subtasks[0].ID

	toggled, err := env.engine.ToggleSubtask(ctx, created.ID, subID)
	if err != nil {
		t.Fatalf("ToggleSubtask: %v", err)
	}
	if !toggled.Subtasks[0].Completed {
		t.Fatal("subtask should be completed after toggle")
	}
	toggled, _ = env.engine.ToggleSubtask(ctx, created.ID, subID)
	if toggled.Subtasks[0].Completed {
		t.Fatal("subtask should be pending after second toggle")
	}
}

func TestCategoryUniqueNameCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.engine.AddCategory(ctx, "Errands", "#111111"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if _, err := env.engine.AddCategory(ctx, "errands", "#222222"); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestDeleteCategoryLeavesTasksDangling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat, _ := env.engine.AddCategory(ctx, "Projects", "#123456")
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "dangling", CategoryID: cat.ID})

	if err := env.engine.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	got, _ := env.engine.GetTask(ctx, created.ID)
	if got.CategoryID != cat.ID {
		t.Fatalf("task categoryId rewritten to %s", got.CategoryID)
	}
	resolved := env.engine.ResolveCategory(ctx, got.CategoryID)
	if resolved.Name != "Uncategorized" {
		t.Fatalf("resolved = %s, want Uncategorized", resolved.Name)
	}
}

func TestAddUrgencyLevelRanksLast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	level, err := env.engine.AddUrgencyLevel(ctx, "someday", "#808080")
	if err != nil {
		t.Fatalf("AddUrgencyLevel: %v", err)
	}
	// Defaults occupy 1..3.
	if level.Priority != 4 {
		t.Fatalf("priority = %d, want 4", level.Priority)
	}
}

func TestUpdateSettingsRejectsNegative(t *testing.T) {
	env := newTestEnv(t)
	s := env.engine.Settings(context.Background())
	s.CompletedTaskRetentionDays = -1
	if _, err := env.engine.UpdateSettings(context.Background(), s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCleanupMarksPendingOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setNow(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{
		Title:   "slipping",
		DueDate: ptrTime(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)),
	})

	env.setNow(time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC))
	res, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}
	if res.OverdueMarked != 1 {
		t.Fatalf("overdueMarked = %d, want 1", res.OverdueMarked)
	}
	got, err := env.engine.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("task should stay active the pass it is marked: %v", err)
	}
	if got.Status != domain.StatusOverdue {
		t.Fatalf("status = %s, want overdue", got.Status)
	}
	if !got.UpdatedAt.Equal(env.now) {
		t.Fatalf("updatedAt not bumped on marking")
	}
	if len(env.engine.History(ctx)) != 0 {
		t.Fatal("newly marked task must not move to history in the same pass")
	}
}

func TestCleanupMovesExpiredOverdueToHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setNow(time.Date(2023, 12, 20, 9, 0, 0, 0, time.UTC))
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{
		Title:   "long gone",
		DueDate: ptrTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	// Shorten retention so the second pass moves it: first pass marks
	// overdue, second pass moves to history.
	settings := env.engine.Settings(ctx)
	settings.OverdueTaskRetentionDays = 3
	if _, err := env.engine.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	env.setNow(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	if _, err := env.engine.RunCleanup(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	env.setNow(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))
	res, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.OverdueMovedToHistory != 1 {
		t.Fatalf("overdueMoved = %d, want 1", res.OverdueMovedToHistory)
	}
	if _, err := env.engine.GetTask(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("task should have left the active list")
	}
	history := env.engine.History(ctx)
	if len(history) != 1 || history[0].DeletionReason != domain.ReasonOverdueExpired {
		t.Fatalf("history = %+v", history)
	}
	want := env.now.AddDate(0, 3, 0)
	if !history[0].RetentionUntil.Equal(want) {
		t.Fatalf("retentionUntil = %v, want %v", history[0].RetentionUntil, want)
	}
}

func TestCleanupMovesExpiredCompletedToHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setNow(time.Date(2023, 11, 1, 9, 0, 0, 0, time.UTC))
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "old win"})
	if _, err := env.engine.CompleteTask(ctx, created.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	// 45 days later, past the 30 day completed retention.
	env.setNow(time.Date(2023, 12, 16, 9, 0, 0, 0, time.UTC))
	res, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}
	if res.CompletedMovedToHistory != 1 {
		t.Fatalf("completedMoved = %d, want 1", res.CompletedMovedToHistory)
	}
	history := env.engine.History(ctx)
	if len(history) != 1 || history[0].DeletionReason != domain.ReasonCompletedExpired {
		t.Fatalf("history = %+v", history)
	}
}

func TestCleanupKeepsFreshTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "fresh"})
	if _, err := env.engine.CompleteTask(ctx, created.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	env.setNow(env.now.AddDate(0, 0, 5))
	res, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}
	if res.Changed() {
		t.Fatalf("nothing should change: %+v", res)
	}
	if _, err := env.engine.GetTask(ctx, created.ID); err != nil {
		t.Fatal("fresh completed task must stay active")
	}
}

func TestCleanupPurgesExpiredHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setNow(time.Date(2023, 9, 1, 9, 0, 0, 0, time.UTC))
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "ephemeral"})
	if err := env.engine.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	// Retention is 3 months; 2024-02-01 is past 2023-12-01.
	env.setNow(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	res, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}
	if res.HistoryCleaned != 1 {
		t.Fatalf("historyCleaned = %d, want 1", res.HistoryCleaned)
	}
	if len(env.engine.History(ctx)) != 0 {
		t.Fatal("expired entry should be gone")
	}
	settings := env.engine.Settings(ctx)
	if !settings.LastHistoryCleanup.Equal(env.now) {
		t.Fatalf("lastHistoryCleanup = %v, want %v", settings.LastHistoryCleanup, env.now)
	}
}

func TestZeroHistoryRetentionKeepsForever(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	settings := env.engine.Settings(ctx)
	settings.HistoryRetentionMonths = 0
	if _, err := env.engine.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "keeper"})
	if err := env.engine.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	env.setNow(env.now.AddDate(10, 0, 0))
	res, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}
	if res.HistoryCleaned != 0 {
		t.Fatal("zero retention history must never be purged")
	}
	if len(env.engine.History(ctx)) != 1 {
		t.Fatal("entry should survive")
	}
}

func TestCleanupStampsLastCleanup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.engine.RunCleanup(ctx); err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}
	settings := env.engine.Settings(ctx)
	if !settings.LastCleanup.Equal(env.now) {
		t.Fatalf("lastCleanup = %v, want %v", settings.LastCleanup, env.now)
	}
}

func TestScheduledCleanupGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// First run seeds lastCleanup at now.
	if _, err := env.engine.RunCleanup(ctx); err != nil {
		t.Fatalf("RunCleanup: %v", err)
	}

	env.setNow(env.now.AddDate(0, 0, 3))
	ran, _, err := env.engine.MaybeRunScheduledCleanup(ctx)
	if err != nil {
		t.Fatalf("MaybeRunScheduledCleanup: %v", err)
	}
	if ran {
		t.Fatal("3 days since last run, frequency 7: gate should hold")
	}

	env.setNow(env.now.AddDate(0, 0, 5))
	ran, _, err = env.engine.MaybeRunScheduledCleanup(ctx)
	if err != nil {
		t.Fatalf("MaybeRunScheduledCleanup: %v", err)
	}
	if !ran {
		t.Fatal("8 days since last run: gate should open")
	}
}

func TestZeroFrequencyDisablesScheduleButNotManual(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	settings := env.engine.Settings(ctx)
	settings.CleanupFrequencyDays = 0
	if _, err := env.engine.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	env.setNow(env.now.AddDate(1, 0, 0))
	ran, _, err := env.engine.MaybeRunScheduledCleanup(ctx)
	if err != nil || ran {
		t.Fatalf("schedule should be disabled: ran=%v err=%v", ran, err)
	}
	if _, err := env.engine.RunCleanup(ctx); err != nil {
		t.Fatalf("manual run must still work: %v", err)
	}
}

func TestCleanupRejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t)
	env.engine.cleanupMu.Lock()
	defer env.engine.cleanupMu.Unlock()
	if _, err := env.engine.RunCleanup(context.Background()); !errors.Is(err, ErrCleanupInProgress) {
		t.Fatalf("err = %v, want ErrCleanupInProgress", err)
	}
}

func TestCleanupAbortsWhenHistoryWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setNow(time.Date(2023, 11, 1, 9, 0, 0, 0, time.UTC))
	created, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "sticky"})
	if _, err := env.engine.CompleteTask(ctx, created.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	boom := errors.New("disk full")
	env.mem.FailSet = func(key string) error {
		if key == store.KeyTaskHistory {
			return boom
		}
		return nil
	}
	env.setNow(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	if _, err := env.engine.RunCleanup(ctx); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want disk full", err)
	}
	env.mem.FailSet = nil
	if _, err := env.engine.GetTask(ctx, created.ID); err != nil {
		t.Fatal("aborted run must not drop the task")
	}
}

func TestArchiveCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "done one"})
	b, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "still open"})
	if _, err := env.engine.CompleteTask(ctx, a.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	moved, err := env.engine.ArchiveCompleted(ctx)
	if err != nil {
		t.Fatalf("ArchiveCompleted: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}
	if _, err := env.engine.GetTask(ctx, b.ID); err != nil {
		t.Fatal("open task must stay")
	}
	history := env.engine.History(ctx)
	if len(history) != 1 || history[0].DeletionReason != domain.ReasonCleanup {
		t.Fatalf("history = %+v", history)
	}
}

func TestFiltersAndSorting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setNow(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	first, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "buy milk", Urgency: "low"})
	env.setNow(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	second, _ := env.engine.AddTask(ctx, TaskCreateOptions{
		Title:   "alarm fix",
		Urgency: "high",
		DueDate: ptrTime(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)),
	})

	newest := env.engine.Tasks(ctx, Filters{})
	if newest[0].ID != second.ID {
		t.Fatal("default sort should be newest first")
	}
	oldest := env.engine.Tasks(ctx, Filters{SortBy: SortOldest})
	if oldest[0].ID != first.ID {
		t.Fatal("oldest sort should lead with first task")
	}
	byUrgency := env.engine.Tasks(ctx, Filters{SortBy: SortUrgency})
	if byUrgency[0].ID != second.ID {
		t.Fatal("high urgency should sort first")
	}
	byDue := env.engine.Tasks(ctx, Filters{SortBy: SortDueDate})
	if byDue[0].ID != second.ID {
		t.Fatal("dated task should sort before undated")
	}
	byTitle := env.engine.Tasks(ctx, Filters{SortBy: SortTitle})
	if byTitle[0].ID != second.ID {
		t.Fatal("alarm should sort before buy")
	}

	matched := env.engine.Tasks(ctx, Filters{Search: "MILK"})
	if len(matched) != 1 || matched[0].ID != first.ID {
		t.Fatalf("search mismatch: %+v", matched)
	}
	high := env.engine.Tasks(ctx, Filters{Urgencies: []string{"high"}})
	if len(high) != 1 || high[0].ID != second.ID {
		t.Fatalf("urgency filter mismatch: %+v", high)
	}
}

func TestHistoricalStatsCombinesActiveAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "active done", CategoryID: "work", Urgency: "high"})
	if _, err := env.engine.CompleteTask(ctx, a.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	_, _ = env.engine.AddTask(ctx, TaskCreateOptions{Title: "active open", CategoryID: "work", Urgency: "low"})
	deleted, _ := env.engine.AddTask(ctx, TaskCreateOptions{Title: "gone", CategoryID: "personal", Urgency: "low"})
	if err := env.engine.DeleteTask(ctx, deleted.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	st := env.engine.HistoricalStats(ctx)
	if st.Total != 3 || st.ActiveTotal != 2 || st.HistoryTotal != 1 {
		t.Fatalf("totals = %+v", st)
	}
	if st.Completed != 1 {
		t.Fatalf("completed = %d, want 1", st.Completed)
	}
	var work GroupStats
	for _, g := range st.ByCategory {
		if g.ID == "work" {
			work = g
		}
	}
	if work.Total != 2 || work.Completed != 1 {
		t.Fatalf("work bucket = %+v", work)
	}
}
