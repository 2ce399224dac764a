// Package streak derives streak figures for a micro-action from its completion history.
//
// Everything here is a pure function of (history, cadence, today). Callers recompute on
// every read and write instead of mutating counters, so an undo of today's completion
// always lands back on the previous values.
package streak

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// Cadence selects which calendar periods count toward a streak.
type Cadence int

const (
	// Daily counts every calendar day.
	Daily Cadence = iota
	// Weekdays counts Monday through Friday; weekend days are skipped.
	Weekdays
	// Weekends counts Saturday and Sunday; weekdays are skipped.
	Weekends
	// ThreePerWeek counts ISO weeks holding at least WeeklyTarget distinct completions.
	ThreePerWeek
)

// WeeklyTarget is the number of distinct completion days a ThreePerWeek week needs.
const WeeklyTarget = 3

// Summary is the derived streak state of a single micro-action.
type Summary struct {
	Current        int
	Best           int
	Total          int
	CompletedToday bool
	LastCompleted  *civil.Date
}

// Calculate derives the streak summary for history as observed on today.
// Duplicate days are collapsed and days after today are ignored.
func Calculate(history []civil.Date, cadence Cadence, today civil.Date) Summary {
	days := normalize(history, today)
	if len(days) == 0 {
		return Summary{}
	}

	done := make(map[civil.Date]struct{}, len(days))
	for _, d := range days {
		done[d] = struct{}{}
	}
	last := days[len(days)-1]

	summary := Summary{
		Total:         len(days),
		LastCompleted: &last,
	}
	_, summary.CompletedToday = done[today]

	if cadence == ThreePerWeek {
		summary.Current, summary.Best = weekly(days, today)
	} else {
		summary.Current, summary.Best = daily(done, days[0], cadence, today)
	}
	if summary.Best < summary.Current {
		summary.Best = summary.Current
	}
	return summary
}

// DueOn reports whether a micro-action with the given cadence still expects a
// completion on day. A day that is already completed is not due.
func DueOn(cadence Cadence, day civil.Date, history []civil.Date) bool {
	days := normalize(history, day)
	for _, d := range days {
		if d == day {
			return false
		}
	}

	if cadence != ThreePerWeek {
		return Qualifies(cadence, day)
	}

	start := WeekStart(day)
	count := 0
	for _, d := range days {
		if !d.Before(start) {
			count++
		}
	}
	return count < WeeklyTarget
}

// Qualifies reports whether day is a streak-bearing day for a day-granular cadence.
// ThreePerWeek treats every day as eligible.
func Qualifies(cadence Cadence, day civil.Date) bool {
	wd := weekday(day)
	switch cadence {
	case Weekdays:
		return wd != time.Saturday && wd != time.Sunday
	case Weekends:
		return wd == time.Saturday || wd == time.Sunday
	default:
		return true
	}
}

// WeekStart returns the Monday of the ISO week containing day.
func WeekStart(day civil.Date) civil.Date {
	offset := (int(weekday(day)) + 6) % 7
	return day.AddDays(-offset)
}

func daily(done map[civil.Date]struct{}, first civil.Date, cadence Cadence, today civil.Date) (int, int) {
	anchor := today
	if _, ok := done[today]; !ok || !Qualifies(cadence, today) {
		anchor = previousQualifying(cadence, today)
	}

	current := 0
	for d := anchor; !d.Before(first); d = previousQualifying(cadence, d) {
		if _, ok := done[d]; !ok {
			break
		}
		current++
	}

	best, run := 0, 0
	for d := first; !d.After(today); d = d.AddDays(1) {
		if !Qualifies(cadence, d) {
			continue
		}
		if _, ok := done[d]; ok {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return current, best
}

func weekly(days []civil.Date, today civil.Date) (int, int) {
	counts := make(map[civil.Date]int)
	for _, d := range days {
		counts[WeekStart(d)]++
	}

	week := WeekStart(today)
	if counts[week] < WeeklyTarget {
		week = week.AddDays(-7)
	}
	current := 0
	for counts[week] >= WeeklyTarget {
		current++
		week = week.AddDays(-7)
	}

	best, run := 0, 0
	for w := WeekStart(days[0]); !w.After(today); w = w.AddDays(7) {
		if counts[w] >= WeeklyTarget {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return current, best
}

func previousQualifying(cadence Cadence, day civil.Date) civil.Date {
	prev := day.AddDays(-1)
	for i := 0; i < 7 && !Qualifies(cadence, prev); i++ {
		prev = prev.AddDays(-1)
	}
	return prev
}

func normalize(history []civil.Date, today civil.Date) []civil.Date {
	seen := make(map[civil.Date]struct{}, len(history))
	out := make([]civil.Date, 0, len(history))
	for _, d := range history {
		if d.After(today) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func weekday(day civil.Date) time.Weekday {
	return day.In(time.UTC).Weekday()
}
