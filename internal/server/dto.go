package server

import (
	"time"

	"taskvault/internal/domain"
)

type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Count int           `json:"count"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title" minLength:"1"`
	Description string     `json:"description,omitempty"`
	CategoryID  string     `json:"category_id,omitempty"`
	Urgency     string     `json:"urgency,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty" format:"date-time"`
	DueDate     *time.Time `json:"due_date,omitempty" format:"date-time"`
	Subtasks    []string   `json:"subtasks,omitempty"`
}

type UpdateTaskRequest struct {
	Title          *string    `json:"title,omitempty" minLength:"1"`
	Description    *string    `json:"description,omitempty"`
	CategoryID     *string    `json:"category_id,omitempty"`
	Urgency        *string    `json:"urgency,omitempty"`
	Status         *string    `json:"status,omitempty" enum:"pending,completed,overdue"`
	StartDate      *time.Time `json:"start_date,omitempty" format:"date-time"`
	ClearStartDate bool       `json:"clear_start_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty" format:"date-time"`
	ClearDueDate   bool       `json:"clear_due_date,omitempty"`
}

type AddSubtaskRequest struct {
	Title string `json:"title" minLength:"1"`
}

type CategoryRequest struct {
	Name  string `json:"name" minLength:"1"`
	Color string `json:"color,omitempty"`
}

type UpdateCategoryRequest struct {
	Name  *string `json:"name,omitempty" minLength:"1"`
	Color *string `json:"color,omitempty"`
}

type UpdateUrgencyLevelRequest struct {
	Name     *string `json:"name,omitempty" minLength:"1"`
	Color    *string `json:"color,omitempty"`
	Priority *int    `json:"priority,omitempty" minimum:"1"`
}

type UpdateSettingsRequest struct {
	CompletedTaskRetentionDays  *int `json:"completed_task_retention_days,omitempty" minimum:"0"`
	OverdueTaskRetentionDays    *int `json:"overdue_task_retention_days,omitempty" minimum:"0"`
	HistoryRetentionMonths      *int `json:"history_retention_months,omitempty" minimum:"0"`
	HistoryCleanupFrequencyDays *int `json:"history_cleanup_frequency_days,omitempty" minimum:"0"`
	CleanupFrequencyDays        *int `json:"cleanup_frequency_days,omitempty" minimum:"0"`
}

type ArchiveResponse struct {
	Archived int `json:"archived"`
}
