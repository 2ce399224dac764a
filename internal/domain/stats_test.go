package domain

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
)

func TestComputeStats(t *testing.T) {
	today := civil.Date{Year: 2025, Month: 1, Day: 10}
	days := func(offsets ...int) []civil.Date {
		out := make([]civil.Date, 0, len(offsets))
		for _, o := range offsets {
			out = append(out, today.AddDays(-o))
		}
		return out
	}
	active := func(current int, completed bool, status DailyStatus, history []civil.Date) MicroActionView {
		v := MicroActionView{MicroAction: MicroAction{IsActive: true, CurrentStreak: current}, CompletedToday: completed, Status: status, History: history}
		return v
	}

	tests := []struct {
		name  string
		views []MicroActionView
		want  Stats
	}{
		{
			name:  "no micro-actions",
			views: nil,
			want:  Stats{CurrentStreaks: []int{}},
		},
		{
			name: "mixed",
			views: []MicroActionView{
				active(3, true, StatusCompletedToday, days(0, 1, 2, 9)),
				active(0, false, StatusDueToday, days(7)),
				active(2, false, StatusNotDueToday, days(1, 2, 6)),
				{MicroAction: MicroAction{IsActive: false, CurrentStreak: 5}, History: days(0, 1, 2, 3, 4)},
			},
			want: Stats{
				TotalActive:       3,
				CompletedToday:    1,
				DueToday:          1,
				CurrentStreaks:    []int{3, 0, 2},
				WeeklyCompletions: 6,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStats(tt.views, today)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("ComputeStats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLongestCurrentStreak(t *testing.T) {
	if got := (Stats{}).LongestCurrentStreak(); got != 0 {
		t.Fatalf("expected 0 for empty stats, got %d", got)
	}
	if got := (Stats{CurrentStreaks: []int{2, 7, 4}}).LongestCurrentStreak(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}
