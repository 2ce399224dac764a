package api

import (
	"time"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
)

// CreateMicroActionRequest is the payload for POST /v1/micro-actions.
type CreateMicroActionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Duration    string `json:"duration"`
	Frequency   string `json:"frequency"`
	TimeOfDay   string `json:"time_of_day"`
	HabitStack  string `json:"habit_stack"`
	IsActive    *bool  `json:"is_active"`
}

func (r CreateMicroActionRequest) toInput() domain.CreateMicroActionInput {
	return domain.CreateMicroActionInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    domain.Category(r.Category),
		Duration:    r.Duration,
		Frequency:   domain.Frequency(r.Frequency),
		TimeOfDay:   r.TimeOfDay,
		HabitStack:  r.HabitStack,
		IsActive:    r.IsActive,
	}
}

// UpdateMicroActionRequest is the payload for PATCH /v1/micro-actions/{id}. Omitted fields are unchanged.
type UpdateMicroActionRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Duration    *string `json:"duration"`
	Frequency   *string `json:"frequency"`
	TimeOfDay   *string `json:"time_of_day"`
	HabitStack  *string `json:"habit_stack"`
	IsActive    *bool   `json:"is_active"`
}

func (r UpdateMicroActionRequest) toPatch() domain.MicroActionPatch {
	patch := domain.MicroActionPatch{
		Title:       r.Title,
		Description: r.Description,
		Duration:    r.Duration,
		TimeOfDay:   r.TimeOfDay,
		HabitStack:  r.HabitStack,
		IsActive:    r.IsActive,
	}
	if r.Category != nil {
		c := domain.Category(*r.Category)
		patch.Category = &c
	}
	if r.Frequency != nil {
		f := domain.Frequency(*r.Frequency)
		patch.Frequency = &f
	}
	return patch
}

// MicroActionResponse exposes a micro-action with its streak fields for today.
type MicroActionResponse struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Category         string    `json:"category"`
	Duration         string    `json:"duration,omitempty"`
	Frequency        string    `json:"frequency"`
	TimeOfDay        string    `json:"time_of_day,omitempty"`
	HabitStack       string    `json:"habit_stack,omitempty"`
	IsActive         bool      `json:"is_active"`
	CurrentStreak    int       `json:"current_streak"`
	BestStreak       int       `json:"best_streak"`
	TotalCompletions int       `json:"total_completions"`
	CompletedToday   bool      `json:"completed_today"`
	Status           string    `json:"status"`
	LastCompleted    *string   `json:"last_completed,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListMicroActionsResponse packages list results.
type ListMicroActionsResponse struct {
	Items      []MicroActionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// CompletionResponse describes a completion and the refreshed micro-action.
type CompletionResponse struct {
	CompletionID string              `json:"completion_id"`
	CompletedOn  string              `json:"completed_on"`
	CompletedAt  time.Time           `json:"completed_at"`
	Replay       bool                `json:"idempotent_replay"`
	MicroAction  MicroActionResponse `json:"micro_action"`
}

// HistoryResponse lists completion days oldest first.
type HistoryResponse struct {
	MicroActionID string   `json:"micro_action_id"`
	Days          []string `json:"days"`
}

// StatsResponse is the dashboard summary.
type StatsResponse struct {
	domain.Stats
	LongestCurrentStreak int    `json:"longest_current_streak"`
	Date                 string `json:"date"`
}

func toMicroActionResponse(view domain.MicroActionView) MicroActionResponse {
	resp := MicroActionResponse{
		ID:               view.ID,
		Title:            view.Title,
		Description:      view.Description,
		Category:         string(view.Category),
		Duration:         view.Duration,
		Frequency:        string(view.Frequency),
		TimeOfDay:        view.TimeOfDay,
		HabitStack:       view.HabitStack,
		IsActive:         view.IsActive,
		CurrentStreak:    view.CurrentStreak,
		BestStreak:       view.BestStreak,
		TotalCompletions: view.TotalCompletions,
		CompletedToday:   view.CompletedToday,
		Status:           string(view.Status),
		CreatedAt:        view.CreatedAt,
		UpdatedAt:        view.UpdatedAt,
	}
	if view.LastCompleted != nil {
		s := view.LastCompleted.String()
		resp.LastCompleted = &s
	}
	return resp
}
