// Package policy holds the lifecycle rules for tasks and history
// entries. Everything here is pure: callers pass the reference time,
// nothing reads the wall clock or touches storage.
package policy

import (
	"time"

	"taskvault/internal/domain"
)

// sameDay compares calendar days in the location of a.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysSince returns floor(days between then and now). Negative when
// then is in the future.
func daysSince(now, then time.Time) int {
	d := now.Sub(then)
	if d < 0 {
		return -int((-d) / (24 * time.Hour))
	}
	return int(d / (24 * time.Hour))
}

// IsOverdue reports whether a task should be classified overdue at
// now. Comparison is by calendar day, not instant: a task due at
// 09:00 is not overdue at 10:00 the same day. A task created and due
// on the same day as now is never overdue that day (grace rule), so
// newly created same-day tasks do not flash as overdue.
func IsOverdue(t domain.Task, now time.Time) bool {
	if t.DueDate == nil || t.Status == domain.StatusCompleted {
		return false
	}
	if sameDay(t.CreatedAt, now) && sameDay(*t.DueDate, now) {
		return false
	}
	return startOfDay(*t.DueDate).Before(startOfDay(now))
}

// EligibleForHistory reports whether a task has aged out of the
// active list, and with which deletion reason. A retention value of
// zero means the class never auto-expires.
func EligibleForHistory(t domain.Task, s domain.Settings, now time.Time) (bool, string) {
	switch {
	case t.Status == domain.StatusCompleted && t.CompletedDate != nil:
		if s.CompletedTaskRetentionDays > 0 && daysSince(now, *t.CompletedDate) >= s.CompletedTaskRetentionDays {
			return true, domain.ReasonCompletedExpired
		}
	case t.Status == domain.StatusOverdue && t.DueDate != nil:
		if s.OverdueTaskRetentionDays > 0 && daysSince(now, *t.DueDate) >= s.OverdueTaskRetentionDays {
			return true, domain.ReasonOverdueExpired
		}
	}
	return false, ""
}

// HistoryEntryExpired reports whether a history entry may be purged
// permanently. Entries with a zero RetentionUntil are kept forever.
func HistoryEntryExpired(h domain.TaskHistory, now time.Time) bool {
	if h.RetentionUntil.IsZero() {
		return false
	}
	return now.After(h.RetentionUntil)
}

// RetentionUntil computes the purge horizon for a history entry
// created at deletedAt. Zero months disables purging.
func RetentionUntil(deletedAt time.Time, retentionMonths int) time.Time {
	if retentionMonths <= 0 {
		return time.Time{}
	}
	return deletedAt.AddDate(0, retentionMonths, 0)
}

// ShouldRunCleanup decides whether a scheduled cleanup is due. A
// frequency of zero means manual-only; manual invocation bypasses
// this gate entirely.
func ShouldRunCleanup(s domain.Settings, now time.Time) bool {
	if s.CleanupFrequencyDays <= 0 {
		return false
	}
	return daysSince(now, s.LastCleanup) >= s.CleanupFrequencyDays
}
