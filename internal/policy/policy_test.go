package policy_test

import (
	"testing"
	"time"

	"taskvault/internal/domain"
	"taskvault/internal/policy"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestIsOverdue(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		task domain.Task
		want bool
	}{
		{
			name: "no due date never overdue",
			task: domain.Task{Status: domain.StatusPending, CreatedAt: now.AddDate(0, 0, -30)},
			want: false,
		},
		{
			name: "completed never overdue even past due",
			task: domain.Task{
				Status:    domain.StatusCompleted,
				CreatedAt: now.AddDate(0, 0, -30),
				DueDate:   datePtr(now.AddDate(0, 0, -10)),
			},
			want: false,
		},
		{
			name: "due yesterday is overdue",
			task: domain.Task{
				Status:    domain.StatusPending,
				CreatedAt: now.AddDate(0, 0, -5),
				DueDate:   datePtr(now.AddDate(0, 0, -1)),
			},
			want: true,
		},
		{
			name: "due later today is not overdue",
			task: domain.Task{
				Status:    domain.StatusPending,
				CreatedAt: now.AddDate(0, 0, -5),
				DueDate:   datePtr(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)),
			},
			want: false,
		},
		{
			name: "due earlier today is still not overdue",
			task: domain.Task{
				Status:    domain.StatusPending,
				CreatedAt: now.AddDate(0, 0, -5),
				DueDate:   datePtr(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)),
			},
			want: false,
		},
		{
			name: "created today due today grace rule",
			task: domain.Task{
				Status:    domain.StatusPending,
				CreatedAt: time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC),
				DueDate:   datePtr(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)),
			},
			want: false,
		},
		{
			name: "stored overdue status re-evaluates from dates",
			task: domain.Task{
				Status:    domain.StatusOverdue,
				CreatedAt: now.AddDate(0, 0, -5),
				DueDate:   datePtr(now.AddDate(0, 0, -2)),
			},
			want: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.IsOverdue(tc.task, now); got != tc.want {
				t.Fatalf("IsOverdue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsOverdueGraceExpiresNextDay(t *testing.T) {
	created := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	task := domain.Task{
		Status:    domain.StatusPending,
		CreatedAt: created,
		DueDate:   datePtr(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)),
	}
	sameEvening := time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC)
	if policy.IsOverdue(task, sameEvening) {
		t.Fatal("same-day task should not be overdue on creation day")
	}
	nextMorning := time.Date(2024, 1, 16, 0, 30, 0, 0, time.UTC)
	if !policy.IsOverdue(task, nextMorning) {
		t.Fatal("same-day task should be overdue the following day")
	}
}

func TestEligibleForHistory(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	settings := domain.Settings{
		CompletedTaskRetentionDays: 7,
		OverdueTaskRetentionDays:   3,
	}

	tests := []struct {
		name       string
		task       domain.Task
		settings   domain.Settings
		want       bool
		wantReason string
	}{
		{
			name: "completed past retention",
			task: domain.Task{
				Status:        domain.StatusCompleted,
				CompletedDate: datePtr(now.AddDate(0, 0, -8)),
			},
			settings:   settings,
			want:       true,
			wantReason: domain.ReasonCompletedExpired,
		},
		{
			name: "completed exactly at retention boundary",
			task: domain.Task{
				Status:        domain.StatusCompleted,
				CompletedDate: datePtr(now.AddDate(0, 0, -7)),
			},
			settings:   settings,
			want:       true,
			wantReason: domain.ReasonCompletedExpired,
		},
		{
			name: "completed within retention",
			task: domain.Task{
				Status:        domain.StatusCompleted,
				CompletedDate: datePtr(now.AddDate(0, 0, -2)),
			},
			settings: settings,
			want:     false,
		},
		{
			name: "completed without completed date",
			task: domain.Task{
				Status: domain.StatusCompleted,
			},
			settings: settings,
			want:     false,
		},
		{
			name: "overdue past retention",
			task: domain.Task{
				Status:  domain.StatusOverdue,
				DueDate: datePtr(now.AddDate(0, 0, -9)),
			},
			settings:   settings,
			want:       true,
			wantReason: domain.ReasonOverdueExpired,
		},
		{
			name: "overdue within retention",
			task: domain.Task{
				Status:  domain.StatusOverdue,
				DueDate: datePtr(now.AddDate(0, 0, -2)),
			},
			settings: settings,
			want:     false,
		},
		{
			name: "pending never eligible",
			task: domain.Task{
				Status:  domain.StatusPending,
				DueDate: datePtr(now.AddDate(0, 0, -30)),
			},
			settings: settings,
			want:     false,
		},
		{
			name: "zero completed retention disables expiry",
			task: domain.Task{
				Status:        domain.StatusCompleted,
				CompletedDate: datePtr(now.AddDate(0, 0, -3650)),
			},
			settings: domain.Settings{CompletedTaskRetentionDays: 0, OverdueTaskRetentionDays: 3},
			want:     false,
		},
		{
			name: "zero overdue retention disables expiry",
			task: domain.Task{
				Status:  domain.StatusOverdue,
				DueDate: datePtr(now.AddDate(0, 0, -3650)),
			},
			settings: domain.Settings{CompletedTaskRetentionDays: 7, OverdueTaskRetentionDays: 0},
			want:     false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := policy.EligibleForHistory(tc.task, tc.settings, now)
			if got != tc.want {
				t.Fatalf("EligibleForHistory = %v, want %v", got, tc.want)
			}
			if got && reason != tc.wantReason {
				t.Fatalf("reason = %q, want %q", reason, tc.wantReason)
			}
		})
	}
}

func TestHistoryEntryExpired(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	expired := domain.TaskHistory{RetentionUntil: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	if !policy.HistoryEntryExpired(expired, now) {
		t.Fatal("entry past retention should be expired")
	}
	kept := domain.TaskHistory{RetentionUntil: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	if policy.HistoryEntryExpired(kept, now) {
		t.Fatal("entry within retention should not be expired")
	}
	forever := domain.TaskHistory{}
	if policy.HistoryEntryExpired(forever, now) {
		t.Fatal("zero retention-until means keep forever")
	}
}

func TestRetentionUntil(t *testing.T) {
	deleted := time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC)
	got := policy.RetentionUntil(deleted, 3)
	want := time.Date(2024, 4, 10, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("RetentionUntil = %v, want %v", got, want)
	}
	if !policy.RetentionUntil(deleted, 0).IsZero() {
		t.Fatal("zero months should produce zero horizon")
	}
}

func TestShouldRunCleanup(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		settings domain.Settings
		want     bool
	}{
		{
			name:     "due after frequency elapsed",
			settings: domain.Settings{CleanupFrequencyDays: 7, LastCleanup: now.AddDate(0, 0, -8)},
			want:     true,
		},
		{
			name:     "exactly at frequency boundary",
			settings: domain.Settings{CleanupFrequencyDays: 7, LastCleanup: now.AddDate(0, 0, -7)},
			want:     true,
		},
		{
			name:     "not yet due",
			settings: domain.Settings{CleanupFrequencyDays: 7, LastCleanup: now.AddDate(0, 0, -2)},
			want:     false,
		},
		{
			name:     "zero frequency means manual only",
			settings: domain.Settings{CleanupFrequencyDays: 0, LastCleanup: now.AddDate(0, 0, -3650)},
			want:     false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.ShouldRunCleanup(tc.settings, now); got != tc.want {
				t.Fatalf("ShouldRunCleanup = %v, want %v", got, tc.want)
			}
		})
	}
}
