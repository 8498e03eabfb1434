package engine

import (
	"context"
	"sort"
	"strings"

	"taskvault/internal/domain"
)

// Sort orders for task listings.
const (
	SortNewest  = "newest"
	SortOldest  = "oldest"
	SortDueDate = "dueDate"
	SortUrgency = "urgency"
	SortTitle   = "title"
)

// Filters narrows and orders a task listing. Zero value means
// everything, newest first.
type Filters struct {
	Statuses   []string
	Categories []string
	Urgencies  []string
	Search     string
	SortBy     string
}

func (f Filters) match(t domain.Task) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, t.CategoryID) {
		return false
	}
	if len(f.Urgencies) > 0 && !contains(f.Urgencies, t.Urgency) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Tasks returns the active tasks matching the filters, sorted.
func (e *Engine) Tasks(ctx context.Context, f Filters) []domain.Task {
	all := e.Store.LoadTasks(ctx)
	out := make([]domain.Task, 0, len(all))
	for _, t := range all {
		if f.match(t) {
			out = append(out, t)
		}
	}
	e.sortTasks(ctx, out, f.SortBy)
	return out
}

func (e *Engine) sortTasks(ctx context.Context, tasks []domain.Task, sortBy string) {
	switch sortBy {
	case SortOldest:
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	case SortDueDate:
		// Undated tasks sink to the bottom.
		sort.SliceStable(tasks, func(i, j int) bool {
			a, b := tasks[i].DueDate, tasks[j].DueDate
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.Before(*b)
			}
		})
	case SortUrgency:
		rank := map[string]int{}
		for _, l := range e.Store.LoadUrgencyLevels(ctx, e.now()) {
			rank[l.ID] = l.Priority
		}
		sort.SliceStable(tasks, func(i, j int) bool {
			return urgencyRank(rank, tasks[i].Urgency) < urgencyRank(rank, tasks[j].Urgency)
		})
	case SortTitle:
		sort.SliceStable(tasks, func(i, j int) bool {
			return strings.ToLower(tasks[i].Title) < strings.ToLower(tasks[j].Title)
		})
	default: // newest
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	}
}

// urgencyRank looks up a level's priority; unknown levels sort last.
func urgencyRank(rank map[string]int, urgency string) int {
	if p, ok := rank[urgency]; ok {
		return p
	}
	return 1 << 30
}

// CompletedTasks returns completed tasks still on the active list.
func (e *Engine) CompletedTasks(ctx context.Context) []domain.Task {
	return e.Tasks(ctx, Filters{Statuses: []string{domain.StatusCompleted}})
}

// IncompleteTasks returns tasks still needing work (pending or overdue).
func (e *Engine) IncompleteTasks(ctx context.Context) []domain.Task {
	return e.Tasks(ctx, Filters{Statuses: []string{domain.StatusPending, domain.StatusOverdue}})
}

// OverdueTasks returns tasks currently classified overdue.
func (e *Engine) OverdueTasks(ctx context.Context) []domain.Task {
	return e.Tasks(ctx, Filters{Statuses: []string{domain.StatusOverdue}})
}

// ResolveCategory maps a task's category id to its category, falling
// back to a neutral placeholder when the id dangles.
func (e *Engine) ResolveCategory(ctx context.Context, id string) domain.Category {
	for _, c := range e.Store.LoadCategories(ctx, e.now()) {
		if c.ID == id {
			return c
		}
	}
	return domain.Category{ID: id, Name: "Uncategorized", Color: "#9CA3AF"}
}

// ResolveUrgency maps a task's urgency key to its level, falling back
// to a neutral placeholder when the key dangles.
func (e *Engine) ResolveUrgency(ctx context.Context, id string) domain.UrgencyLevel {
	for _, l := range e.Store.LoadUrgencyLevels(ctx, e.now()) {
		if l.ID == id {
			return l
		}
	}
	return domain.UrgencyLevel{ID: id, Name: "Unknown", Color: "#9CA3AF", Priority: 1 << 30}
}

// GroupStats aggregates completion counts for one category or urgency
// bucket, combining active tasks with historical snapshots.
type GroupStats struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// Stats is the combined lifetime view: active counts plus everything
// that has already moved to history.
type Stats struct {
	ActiveTotal     int          `json:"active_total"`
	ActiveCompleted int          `json:"active_completed"`
	ActiveOverdue   int          `json:"active_overdue"`
	HistoryTotal    int          `json:"history_total"`
	Completed       int          `json:"completed"`
	Total           int          `json:"total"`
	CompletionRate  float64      `json:"completion_rate"`
	ByCategory      []GroupStats `json:"by_category"`
	ByUrgency       []GroupStats `json:"by_urgency"`
}

// HistoricalStats computes lifetime statistics over active tasks and
// history snapshots together. A history entry counts as completed
// when its snapshot was completed or it expired as completed.
func (e *Engine) HistoricalStats(ctx context.Context) Stats {
	now := e.now()
	tasks := e.Store.LoadTasks(ctx)
	history := e.Store.LoadHistory(ctx)

	var st Stats
	st.ActiveTotal = len(tasks)
	st.HistoryTotal = len(history)
	st.Total = len(tasks) + len(history)

	type bucket struct{ total, completed int }
	byCat := map[string]*bucket{}
	byUrg := map[string]*bucket{}
	tally := func(m map[string]*bucket, key string, completed bool) {
		b := m[key]
		if b == nil {
			b = &bucket{}
			m[key] = b
		}
		b.total++
		if completed {
			b.completed++
		}
	}

	for _, t := range tasks {
		completed := t.Status == domain.StatusCompleted
		if completed {
			st.ActiveCompleted++
			st.Completed++
		}
		if t.Status == domain.StatusOverdue {
			st.ActiveOverdue++
		}
		tally(byCat, t.CategoryID, completed)
		tally(byUrg, t.Urgency, completed)
	}
	for _, h := range history {
		completed := h.Task.Status == domain.StatusCompleted || h.DeletionReason == domain.ReasonCompletedExpired
		if completed {
			st.Completed++
		}
		tally(byCat, h.Task.CategoryID, completed)
		tally(byUrg, h.Task.Urgency, completed)
	}
	if st.Total > 0 {
		st.CompletionRate = float64(st.Completed) / float64(st.Total)
	}

	for _, c := range e.Store.LoadCategories(ctx, now) {
		if b, ok := byCat[c.ID]; ok {
			st.ByCategory = append(st.ByCategory, groupStats(c.ID, c.Name, c.Color, b.total, b.completed))
			delete(byCat, c.ID)
		}
	}
	for id, b := range byCat {
		name := "Uncategorized"
		if id != "" {
			name = id
		}
		st.ByCategory = append(st.ByCategory, groupStats(id, name, "#9CA3AF", b.total, b.completed))
	}
	for _, l := range e.Store.LoadUrgencyLevels(ctx, now) {
		if b, ok := byUrg[l.ID]; ok {
			st.ByUrgency = append(st.ByUrgency, groupStats(l.ID, l.Name, l.Color, b.total, b.completed))
			delete(byUrg, l.ID)
		}
	}
	for id, b := range byUrg {
		st.ByUrgency = append(st.ByUrgency, groupStats(id, id, "#9CA3AF", b.total, b.completed))
	}
	sort.Slice(st.ByCategory, func(i, j int) bool { return st.ByCategory[i].Total > st.ByCategory[j].Total })
	sort.Slice(st.ByUrgency, func(i, j int) bool { return st.ByUrgency[i].Total > st.ByUrgency[j].Total })
	return st
}

func groupStats(id, name, color string, total, completed int) GroupStats {
	g := GroupStats{ID: id, Name: name, Color: color, Total: total, Completed: completed}
	if total > 0 {
		g.Rate = float64(completed) / float64(total)
	}
	return g
}
