package domain

import "time"

// Task statuses. Status is stored, not computed: overdue is a cached
// classification reconciled once per cleanup pass.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusOverdue   = "overdue"
)

// Reasons a task ends up in the history log.
const (
	ReasonCompletedExpired = "completed_expired"
	ReasonOverdueExpired   = "overdue_expired"
	ReasonManualDeletion   = "manual_deletion"
	ReasonCleanup          = "cleanup"
)

type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	CategoryID    string     `json:"category_id,omitempty"`
	Urgency       string     `json:"urgency"`
	Status        string     `json:"status" enum:"pending,completed,overdue"`
	StartDate     *time.Time `json:"start_date,omitempty" format:"date-time"`
	DueDate       *time.Time `json:"due_date,omitempty" format:"date-time"`
	CompletedDate *time.Time `json:"completed_date,omitempty" format:"date-time"`
	CreatedAt     time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt     time.Time  `json:"updated_at" format:"date-time"`
	Subtasks      []Subtask  `json:"subtasks"`
}

type Subtask struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// UrgencyLevel ranks tasks; lower Priority means more urgent. Levels
// created at runtime get max(priority)+1 so the fixed defaults keep
// their ordering.
type UrgencyLevel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// TaskHistory is an immutable snapshot of a task at deletion time.
// RetentionUntil's zero value means the entry never expires.
type TaskHistory struct {
	ID             string    `json:"id"`
	Task           Task      `json:"task"`
	DeletedAt      time.Time `json:"deleted_at" format:"date-time"`
	DeletionReason string    `json:"deletion_reason" enum:"completed_expired,overdue_expired,manual_deletion,cleanup"`
	RetentionUntil time.Time `json:"retention_until" format:"date-time"`
}

type Settings struct {
	CompletedTaskRetentionDays  int       `json:"completed_task_retention_days"`
	OverdueTaskRetentionDays    int       `json:"overdue_task_retention_days"`
	HistoryRetentionMonths      int       `json:"history_retention_months"`
	HistoryCleanupFrequencyDays int       `json:"history_cleanup_frequency_days"`
	CleanupFrequencyDays        int       `json:"cleanup_frequency_days"`
	LastCleanup                 time.Time `json:"last_cleanup" format:"date-time"`
	LastHistoryCleanup          time.Time `json:"last_history_cleanup" format:"date-time"`
}

// CleanupResult reports what one cleanup run did.
type CleanupResult struct {
	CompletedMovedToHistory int `json:"completed_moved_to_history"`
	OverdueMovedToHistory   int `json:"overdue_moved_to_history"`
	OverdueMarked           int `json:"overdue_marked"`
	HistoryCleaned          int `json:"history_cleaned"`
}

// Changed reports whether the run touched any state callers render.
func (r CleanupResult) Changed() bool {
	return r.CompletedMovedToHistory > 0 || r.OverdueMovedToHistory > 0 || r.OverdueMarked > 0 || r.HistoryCleaned > 0
}
