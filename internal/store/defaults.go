package store

import (
	"time"

	"taskvault/internal/domain"
)

// Default collection ids are fixed so tasks referencing them stay
// valid across fresh installs.

func DefaultCategories(now time.Time) []domain.Category {
	return []domain.Category{
		{ID: "work", Name: "Work", Color: "#3B82F6", CreatedAt: now},
		{ID: "personal", Name: "Personal", Color: "#10B981", CreatedAt: now},
		{ID: "health", Name: "Health", Color: "#EF4444", CreatedAt: now},
		{ID: "finance", Name: "Finance", Color: "#F59E0B", CreatedAt: now},
	}
}

func DefaultUrgencyLevels(now time.Time) []domain.UrgencyLevel {
	return []domain.UrgencyLevel{
		{ID: "high", Name: "High", Color: "#EF4444", Priority: 1, CreatedAt: now},
		{ID: "medium", Name: "Medium", Color: "#F59E0B", Priority: 2, CreatedAt: now},
		{ID: "low", Name: "Low", Color: "#10B981", Priority: 3, CreatedAt: now},
	}
}

func DefaultSettings(now time.Time) domain.Settings {
	return domain.Settings{
		CompletedTaskRetentionDays:  30,
		OverdueTaskRetentionDays:    90,
		HistoryRetentionMonths:      3,
		HistoryCleanupFrequencyDays: 30,
		CleanupFrequencyDays:        7,
		LastCleanup:                 now,
		LastHistoryCleanup:          now,
	}
}
