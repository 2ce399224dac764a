package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/janhstrom/mindreminder-sub000/internal/streak"
)

// Category groups micro-actions on the dashboard.
type Category string

const (
	CategoryHealth        Category = "health"
	CategoryLearning      Category = "learning"
	CategoryMindfulness   Category = "mindfulness"
	CategoryProductivity  Category = "productivity"
	CategoryRelationships Category = "relationships"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryHealth, CategoryLearning, CategoryMindfulness, CategoryProductivity, CategoryRelationships:
		return true
	}
	return false
}

// Frequency is the cadence a micro-action is expected to be performed at.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekdays  Frequency = "weekdays"
	FrequencyWeekends  Frequency = "weekends"
	FrequencyThreeWeek Frequency = "3x-week"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekdays, FrequencyWeekends, FrequencyThreeWeek:
		return true
	}
	return false
}

// Cadence maps the frequency onto the streak calculator's cadence.
func (f Frequency) Cadence() streak.Cadence {
	switch f {
	case FrequencyWeekdays:
		return streak.Weekdays
	case FrequencyWeekends:
		return streak.Weekends
	case FrequencyThreeWeek:
		return streak.ThreePerWeek
	default:
		return streak.Daily
	}
}

// DailyStatus is the per-day state of a single micro-action.
type DailyStatus string

const (
	StatusNotDueToday    DailyStatus = "not_due_today"
	StatusDueToday       DailyStatus = "due_today"
	StatusCompletedToday DailyStatus = "completed_today"
)

// MicroAction is the stored habit definition. The streak fields hold the last
// snapshot written alongside a ledger change; readers recompute them from history.
type MicroAction struct {
	ID               string
	UserID           string
	Title            string
	Description      string
	Category         Category
	Duration         string
	Frequency        Frequency
	TimeOfDay        string
	HabitStack       string
	IsActive         bool
	CurrentStreak    int
	BestStreak       int
	TotalCompletions int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MicroActionView is a micro-action with streak fields derived for a specific day.
type MicroActionView struct {
	MicroAction
	CompletedToday bool
	Status         DailyStatus
	LastCompleted  *civil.Date
	History        []civil.Date
}

// CompletionEvent records that a micro-action was performed on a calendar day.
type CompletionEvent struct {
	ID            string
	MicroActionID string
	UserID        string
	Day           civil.Date
	CompletedAt   time.Time
}

// InsertOutcome tags the result of a ledger insert.
type InsertOutcome int

const (
	// InsertCreated means a new completion row was written.
	InsertCreated InsertOutcome = iota
	// InsertExisting means a completion for the same day already existed.
	InsertExisting
)

// CreateMicroActionInput captures the fields accepted when creating a micro-action.
type CreateMicroActionInput struct {
	Title       string
	Description string
	Category    Category
	Duration    string
	Frequency   Frequency
	TimeOfDay   string
	HabitStack  string
	IsActive    *bool
}

// Validate checks required fields and enumerations.
func (in CreateMicroActionInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return NewValidationError("title", "is required")
	}
	if !in.Category.Valid() {
		return NewValidationError("category", "must be one of health, learning, mindfulness, productivity, relationships")
	}
	if in.Frequency != "" && !in.Frequency.Valid() {
		return NewValidationError("frequency", "must be one of daily, weekdays, weekends, 3x-week")
	}
	return nil
}

// MicroActionPatch is a partial update; nil fields are left untouched.
type MicroActionPatch struct {
	Title       *string
	Description *string
	Category    *Category
	Duration    *string
	Frequency   *Frequency
	TimeOfDay   *string
	HabitStack  *string
	IsActive    *bool
}

// Apply validates the patch and copies the set fields onto action.
func (p MicroActionPatch) Apply(action *MicroAction) error {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return NewValidationError("title", "is required")
		}
		action.Title = strings.TrimSpace(*p.Title)
	}
	if p.Category != nil {
		if !p.Category.Valid() {
			return NewValidationError("category", "must be one of health, learning, mindfulness, productivity, relationships")
		}
		action.Category = *p.Category
	}
	if p.Frequency != nil {
		if !p.Frequency.Valid() {
			return NewValidationError("frequency", "must be one of daily, weekdays, weekends, 3x-week")
		}
		action.Frequency = *p.Frequency
	}
	if p.Description != nil {
		action.Description = *p.Description
	}
	if p.Duration != nil {
		action.Duration = *p.Duration
	}
	if p.TimeOfDay != nil {
		action.TimeOfDay = *p.TimeOfDay
	}
	if p.HabitStack != nil {
		action.HabitStack = *p.HabitStack
	}
	if p.IsActive != nil {
		action.IsActive = *p.IsActive
	}
	return nil
}

// Cursor models the pagination token for micro-action listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
