package domain

import "cloud.google.com/go/civil"

// weeklyWindowDays is the length of the trailing window used for WeeklyCompletions.
const weeklyWindowDays = 7

// Stats summarises a user's micro-actions for the dashboard.
type Stats struct {
	TotalActive       int   `json:"total_active"`
	CompletedToday    int   `json:"completed_today"`
	DueToday          int   `json:"due_today"`
	CurrentStreaks    []int `json:"current_streaks"`
	WeeklyCompletions int   `json:"weekly_completions"`
}

// LongestCurrentStreak returns the largest entry of CurrentStreaks, or 0 when empty.
func (s Stats) LongestCurrentStreak() int {
	longest := 0
	for _, v := range s.CurrentStreaks {
		if v > longest {
			longest = v
		}
	}
	return longest
}

// ComputeStats aggregates active micro-actions as seen on today. Views must carry
// their History for WeeklyCompletions to be meaningful.
func ComputeStats(views []MicroActionView, today civil.Date) Stats {
	stats := Stats{CurrentStreaks: make([]int, 0, len(views))}
	windowStart := today.AddDays(-(weeklyWindowDays - 1))

	for _, view := range views {
		if !view.IsActive {
			continue
		}
		stats.TotalActive++
		if view.CompletedToday {
			stats.CompletedToday++
		}
		if view.Status == StatusDueToday {
			stats.DueToday++
		}
		stats.CurrentStreaks = append(stats.CurrentStreaks, view.CurrentStreak)

		for _, d := range view.History {
			if !d.Before(windowStart) && !d.After(today) {
				stats.WeeklyCompletions++
			}
		}
	}
	return stats
}
