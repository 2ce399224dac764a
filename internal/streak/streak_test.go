package streak

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
)

func day(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func days(t *testing.T, values ...string) []civil.Date {
	t.Helper()
	out := make([]civil.Date, 0, len(values))
	for _, v := range values {
		out = append(out, day(t, v))
	}
	return out
}

func ptr(d civil.Date) *civil.Date { return &d }

func TestCalculate(t *testing.T) {
	tests := []struct {
		name    string
		history []string
		cadence Cadence
		today   string
		want    func(t *testing.T) Summary
	}{
		{
			name:    "empty history",
			cadence: Daily,
			today:   "2025-01-03",
			want:    func(*testing.T) Summary { return Summary{} },
		},
		{
			name:    "consecutive daily completions",
			history: []string{"2025-01-01", "2025-01-02", "2025-01-03"},
			cadence: Daily,
			today:   "2025-01-03",
			want: func(t *testing.T) Summary {
				return Summary{Current: 3, Best: 3, Total: 3, CompletedToday: true, LastCompleted: ptr(day(t, "2025-01-03"))}
			},
		},
		{
			name:    "missed day resets current but keeps best",
			history: []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-05"},
			cadence: Daily,
			today:   "2025-01-05",
			want: func(t *testing.T) Summary {
				return Summary{Current: 1, Best: 3, Total: 4, CompletedToday: true, LastCompleted: ptr(day(t, "2025-01-05"))}
			},
		},
		{
			name:    "today pending keeps yesterday's streak",
			history: []string{"2025-01-01", "2025-01-02", "2025-01-03"},
			cadence: Daily,
			today:   "2025-01-04",
			want: func(t *testing.T) Summary {
				return Summary{Current: 3, Best: 3, Total: 3, LastCompleted: ptr(day(t, "2025-01-03"))}
			},
		},
		{
			name:    "yesterday missed breaks streak",
			history: []string{"2025-01-01", "2025-01-02", "2025-01-03"},
			cadence: Daily,
			today:   "2025-01-05",
			want: func(t *testing.T) Summary {
				return Summary{Current: 0, Best: 3, Total: 3, LastCompleted: ptr(day(t, "2025-01-03"))}
			},
		},
		{
			name:    "weekdays bridge the weekend",
			history: []string{"2025-01-02", "2025-01-03", "2025-01-06"},
			cadence: Weekdays,
			today:   "2025-01-06",
			want: func(t *testing.T) Summary {
				return Summary{Current: 3, Best: 3, Total: 3, CompletedToday: true, LastCompleted: ptr(day(t, "2025-01-06"))}
			},
		},
		{
			name:    "weekdays viewed on saturday",
			history: []string{"2025-01-02", "2025-01-03"},
			cadence: Weekdays,
			today:   "2025-01-04",
			want: func(t *testing.T) Summary {
				return Summary{Current: 2, Best: 2, Total: 2, LastCompleted: ptr(day(t, "2025-01-03"))}
			},
		},
		{
			name:    "weekend completions ignore weekdays",
			history: []string{"2025-01-04", "2025-01-05", "2025-01-11"},
			cadence: Weekends,
			today:   "2025-01-12",
			want: func(t *testing.T) Summary {
				return Summary{Current: 3, Best: 3, Total: 3, LastCompleted: ptr(day(t, "2025-01-11"))}
			},
		},
		{
			name: "three per week counts weeks",
			history: []string{
				"2025-01-06", "2025-01-08", "2025-01-10",
				"2025-01-13", "2025-01-14", "2025-01-15",
			},
			cadence: ThreePerWeek,
			today:   "2025-01-20",
			want: func(t *testing.T) Summary {
				return Summary{Current: 2, Best: 2, Total: 6, LastCompleted: ptr(day(t, "2025-01-15"))}
			},
		},
		{
			name: "three per week broken by a short week",
			history: []string{
				"2024-12-30", "2024-12-31", "2025-01-01",
				"2025-01-06",
				"2025-01-13", "2025-01-14", "2025-01-15",
			},
			cadence: ThreePerWeek,
			today:   "2025-01-15",
			want: func(t *testing.T) Summary {
				return Summary{Current: 1, Best: 1, Total: 7, CompletedToday: true, LastCompleted: ptr(day(t, "2025-01-15"))}
			},
		},
		{
			name:    "duplicates and future days are ignored",
			history: []string{"2025-01-01", "2025-01-01", "2025-01-02", "2025-01-10"},
			cadence: Daily,
			today:   "2025-01-02",
			want: func(t *testing.T) Summary {
				return Summary{Current: 2, Best: 2, Total: 2, CompletedToday: true, LastCompleted: ptr(day(t, "2025-01-02"))}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(days(t, tt.history...), tt.cadence, day(t, tt.today))
			if diff := cmp.Diff(tt.want(t), got); diff != "" {
				t.Fatalf("Calculate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCalculateConsecutiveRunEqualsLength(t *testing.T) {
	start := day(t, "2025-03-01")
	var history []civil.Date
	for n := 1; n <= 30; n++ {
		history = append(history, start.AddDays(n-1))
		got := Calculate(history, Daily, start.AddDays(n-1))
		if got.Current != n || got.Best != n || got.Total != n {
			t.Fatalf("after %d days got current=%d best=%d total=%d", n, got.Current, got.Best, got.Total)
		}
	}
}

func TestDueOn(t *testing.T) {
	tests := []struct {
		name    string
		cadence Cadence
		history []string
		day     string
		want    bool
	}{
		{name: "daily pending", cadence: Daily, day: "2025-01-06", want: true},
		{name: "daily done", cadence: Daily, history: []string{"2025-01-06"}, day: "2025-01-06", want: false},
		{name: "weekdays on saturday", cadence: Weekdays, day: "2025-01-04", want: false},
		{name: "weekends on saturday", cadence: Weekends, day: "2025-01-04", want: true},
		{name: "three per week target met", cadence: ThreePerWeek, history: []string{"2025-01-06", "2025-01-07", "2025-01-08"}, day: "2025-01-09", want: false},
		{name: "three per week pending", cadence: ThreePerWeek, history: []string{"2025-01-03", "2025-01-06", "2025-01-07"}, day: "2025-01-09", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DueOn(tt.cadence, day(t, tt.day), days(t, tt.history...)); got != tt.want {
				t.Fatalf("DueOn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeekStart(t *testing.T) {
	cases := map[string]string{
		"2025-01-06": "2025-01-06",
		"2025-01-12": "2025-01-06",
		"2025-01-01": "2024-12-30",
	}
	for in, want := range cases {
		if got := WeekStart(day(t, in)); got != day(t, want) {
			t.Fatalf("WeekStart(%s) = %s, want %s", in, got, want)
		}
	}
}
