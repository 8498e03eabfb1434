// Package server exposes the task engine over HTTP. Routes are
// registered with huma on a chi router; every error is rendered in a
// single envelope shape.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskvault/internal/domain"
	"taskvault/internal/engine"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the TaskVault API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("TaskVault API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerCategories(group, cfg.Engine)
	registerUrgencyLevels(group, cfg.Engine)
	registerSettings(group, cfg.Engine)
	registerHistory(group, cfg.Engine)
	registerCleanup(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrCleanupInProgress) {
		return newAPIError(http.StatusConflict, "cleanup_in_progress", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must be") || strings.Contains(lowered, "unknown status") ||
		strings.Contains(lowered, "cannot mark"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	type taskPath struct {
		TaskID string `path:"task_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status   []string `query:"status" enum:"pending,completed,overdue"`
		Category []string `query:"category"`
		Urgency  []string `query:"urgency"`
		Search   string   `query:"search"`
		Sort     string   `query:"sort" enum:"newest,oldest,dueDate,urgency,title"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		tasks := e.Tasks(ctx, engine.Filters{
			Statuses:   input.Status,
			Categories: input.Category,
			Urgencies:  input.Urgency,
			Search:     input.Search,
			SortBy:     input.Sort,
		})
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Tasks: tasks, Count: len(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.AddTask(ctx, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			CategoryID:  input.Body.CategoryID,
			Urgency:     input.Body.Urgency,
			StartDate:   input.Body.StartDate,
			DueDate:     input.Body.DueDate,
			Subtasks:    input.Body.Subtasks,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
	}, func(ctx context.Context, input *struct {
		taskPath
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.UpdateTask(ctx, input.TaskID, engine.TaskUpdateOptions{
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			CategoryID:     input.Body.CategoryID,
			Urgency:        input.Body.Urgency,
			Status:         input.Body.Status,
			StartDate:      input.Body.StartDate,
			ClearStartDate: input.Body.ClearStartDate,
			DueDate:        input.Body.DueDate,
			ClearDueDate:   input.Body.ClearDueDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/complete",
		Summary:     "Complete task",
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.CompleteTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/subtasks",
		Summary:       "Add subtask",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		taskPath
		Body AddSubtaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.AddSubtask(ctx, input.TaskID, input.Body.Title)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-subtask",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/subtasks/{subtask_id}/toggle",
		Summary:     "Toggle subtask completion",
	}, func(ctx context.Context, input *struct {
		taskPath
		SubtaskID string `path:"subtask_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.ToggleSubtask(ctx, input.TaskID, input.SubtaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerCategories(api huma.API, e *engine.Engine) {
	type categoryPath struct {
		CategoryID string `path:"category_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Category `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Category `json:"body"`
		}{Body: e.Categories(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create category",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CategoryRequest `json:"body"`
	}) (*struct {
		Body domain.Category `json:"body"`
	}, error) {
		c, err := e.AddCategory(ctx, input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Category `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-category",
		Method:      http.MethodPatch,
		Path:        "/categories/{category_id}",
		Summary:     "Update category",
	}, func(ctx context.Context, input *struct {
		categoryPath
		Body UpdateCategoryRequest `json:"body"`
	}) (*struct {
		Body domain.Category `json:"body"`
	}, error) {
		c, err := e.UpdateCategory(ctx, input.CategoryID, input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Category `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-category",
		Method:        http.MethodDelete,
		Path:          "/categories/{category_id}",
		Summary:       "Delete category",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *categoryPath) (*struct{}, error) {
		if err := e.DeleteCategory(ctx, input.CategoryID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUrgencyLevels(api huma.API, e *engine.Engine) {
	type urgencyPath struct {
		UrgencyID string `path:"urgency_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-urgency-levels",
		Method:      http.MethodGet,
		Path:        "/urgency-levels",
		Summary:     "List urgency levels",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.UrgencyLevel `json:"body"`
	}, error) {
		return &struct {
			Body []domain.UrgencyLevel `json:"body"`
		}{Body: e.UrgencyLevels(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-urgency-level",
		Method:        http.MethodPost,
		Path:          "/urgency-levels",
		Summary:       "Create urgency level",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CategoryRequest `json:"body"`
	}) (*struct {
		Body domain.UrgencyLevel `json:"body"`
	}, error) {
		l, err := e.AddUrgencyLevel(ctx, input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UrgencyLevel `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-urgency-level",
		Method:      http.MethodPatch,
		Path:        "/urgency-levels/{urgency_id}",
		Summary:     "Update urgency level",
	}, func(ctx context.Context, input *struct {
		urgencyPath
		Body UpdateUrgencyLevelRequest `json:"body"`
	}) (*struct {
		Body domain.UrgencyLevel `json:"body"`
	}, error) {
		l, err := e.UpdateUrgencyLevel(ctx, input.UrgencyID, input.Body.Name, input.Body.Color, input.Body.Priority)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UrgencyLevel `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-urgency-level",
		Method:        http.MethodDelete,
		Path:          "/urgency-levels/{urgency_id}",
		Summary:       "Delete urgency level",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *urgencyPath) (*struct{}, error) {
		if err := e.DeleteUrgencyLevel(ctx, input.UrgencyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSettings(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Get settings",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Settings `json:"body"`
	}, error) {
		return &struct {
			Body domain.Settings `json:"body"`
		}{Body: e.Settings(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/settings",
		Summary:     "Update settings",
	}, func(ctx context.Context, input *struct {
		Body UpdateSettingsRequest `json:"body"`
	}) (*struct {
		Body domain.Settings `json:"body"`
	}, error) {
		s := e.Settings(ctx)
		if input.Body.CompletedTaskRetentionDays != nil {
			s.CompletedTaskRetentionDays = *input.Body.CompletedTaskRetentionDays
		}
		if input.Body.OverdueTaskRetentionDays != nil {
			s.OverdueTaskRetentionDays = *input.Body.OverdueTaskRetentionDays
		}
		if input.Body.HistoryRetentionMonths != nil {
			s.HistoryRetentionMonths = *input.Body.HistoryRetentionMonths
		}
		if input.Body.HistoryCleanupFrequencyDays != nil {
			s.HistoryCleanupFrequencyDays = *input.Body.HistoryCleanupFrequencyDays
		}
		if input.Body.CleanupFrequencyDays != nil {
			s.CleanupFrequencyDays = *input.Body.CleanupFrequencyDays
		}
		updated, err := e.UpdateSettings(ctx, s)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Settings `json:"body"`
		}{Body: updated}, nil
	})
}

func registerHistory(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "List task history",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TaskHistory `json:"body"`
	}, error) {
		return &struct {
			Body []domain.TaskHistory `json:"body"`
		}{Body: e.History(ctx)}, nil
	})
}

func registerCleanup(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-cleanup",
		Method:      http.MethodPost,
		Path:        "/cleanup",
		Summary:     "Run cleanup now",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.CleanupResult `json:"body"`
	}, error) {
		res, err := e.RunCleanup(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CleanupResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-completed",
		Method:      http.MethodPost,
		Path:        "/cleanup/archive-completed",
		Summary:     "Archive all completed tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ArchiveResponse `json:"body"`
	}, error) {
		moved, err := e.ArchiveCompleted(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArchiveResponse `json:"body"`
		}{Body: ArchiveResponse{Archived: moved}}, nil
	})
}

func registerStats(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Lifetime statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Stats `json:"body"`
	}, error) {
		return &struct {
			Body engine.Stats `json:"body"`
		}{Body: e.HistoricalStats(ctx)}, nil
	})
}
