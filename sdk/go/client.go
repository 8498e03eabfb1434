// Package taskvaultsdk is a minimal client for the TaskVault HTTP API.
package taskvaultsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal TaskVault HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	CategoryID    string    `json:"category_id,omitempty"`
	Urgency       string    `json:"urgency"`
	Status        string    `json:"status"`
	StartDate     *string   `json:"start_date,omitempty"`
	DueDate       *string   `json:"due_date,omitempty"`
	CompletedDate *string   `json:"completed_date,omitempty"`
	CreatedAt     string    `json:"created_at"`
	UpdatedAt     string    `json:"updated_at"`
	Subtasks      []Subtask `json:"subtasks"`
}

type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type UrgencyLevel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Priority int    `json:"priority"`
}

type TaskHistory struct {
	ID             string `json:"id"`
	Task           Task   `json:"task"`
	DeletedAt      string `json:"deleted_at"`
	DeletionReason string `json:"deletion_reason"`
	RetentionUntil string `json:"retention_until"`
}

type Settings struct {
	CompletedTaskRetentionDays  int    `json:"completed_task_retention_days"`
	OverdueTaskRetentionDays    int    `json:"overdue_task_retention_days"`
	HistoryRetentionMonths      int    `json:"history_retention_months"`
	HistoryCleanupFrequencyDays int    `json:"history_cleanup_frequency_days"`
	CleanupFrequencyDays        int    `json:"cleanup_frequency_days"`
	LastCleanup                 string `json:"last_cleanup"`
	LastHistoryCleanup          string `json:"last_history_cleanup"`
}

type CleanupResult struct {
	CompletedMovedToHistory int `json:"completed_moved_to_history"`
	OverdueMovedToHistory   int `json:"overdue_moved_to_history"`
	OverdueMarked           int `json:"overdue_marked"`
	HistoryCleaned          int `json:"history_cleaned"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, urgency string) (Task, error) {
	body := map[string]any{"title": title}
	if urgency != "" {
		body["urgency"] = urgency
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks lists tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := "tasks"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// CompleteTask marks a task completed.
func (c *Client) CompleteTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

// DeleteTask deletes a task, moving it to history.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// ListCategories lists categories.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var resp []Category
	err := c.do(ctx, http.MethodGet, "categories", nil, &resp)
	return resp, err
}

// ListUrgencyLevels lists urgency levels.
func (c *Client) ListUrgencyLevels(ctx context.Context) ([]UrgencyLevel, error) {
	var resp []UrgencyLevel
	err := c.do(ctx, http.MethodGet, "urgency-levels", nil, &resp)
	return resp, err
}

// History lists task history entries.
func (c *Client) History(ctx context.Context) ([]TaskHistory, error) {
	var resp []TaskHistory
	err := c.do(ctx, http.MethodGet, "history", nil, &resp)
	return resp, err
}

// GetSettings fetches settings.
func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodGet, "settings", nil, &resp)
	return resp, err
}

// RunCleanup triggers a cleanup run.
func (c *Client) RunCleanup(ctx context.Context) (CleanupResult, error) {
	var resp CleanupResult
	err := c.do(ctx, http.MethodPost, "cleanup", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
