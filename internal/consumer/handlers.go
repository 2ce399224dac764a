package consumer

import (
	"context"
	"errors"
	"fmt"
)

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Chain runs every handler in order and joins their errors, so one failing handler
// does not starve the others.
type Chain []Handler

// Handle implements Handler.
func (c Chain) Handle(ctx context.Context, msg Message) error {
	var err error
	for _, h := range c {
		if hErr := h.Handle(ctx, msg); hErr != nil {
			err = errors.Join(err, hErr)
		}
	}
	return err
}

// CacheInvalidator drops every cached stats entry of a user.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// StatsInvalidationHandler evicts the stats cache of the user an event belongs to,
// keeping API replicas coherent with writes served elsewhere.
type StatsInvalidationHandler struct {
	cache CacheInvalidator
}

// NewStatsInvalidationHandler constructs a StatsInvalidationHandler.
func NewStatsInvalidationHandler(cache CacheInvalidator) *StatsInvalidationHandler {
	return &StatsInvalidationHandler{cache: cache}
}

// Handle implements Handler.
func (h *StatsInvalidationHandler) Handle(ctx context.Context, msg Message) error {
	if msg.UserID == "" {
		return nil
	}
	if err := h.cache.Invalidate(ctx, msg.UserID); err != nil {
		return fmt.Errorf("invalidate stats for %s: %w", msg.UserID, err)
	}
	recordInvalidation(msg)
	return nil
}
