package store

import (
	"context"
	"errors"

	"github.com/seantiz/reaper/internal/model"
)

// ErrInvalidTransition is returned when a reap status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ReapStats holds aggregate enforcement statistics.
type ReapStats struct {
	Total          int            `json:"total"`
	Active         int            `json:"active"`
	CountByStatus  map[string]int `json:"count_by_status"`
	CountByBackend map[string]int `json:"count_by_backend"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for reaps and their events.
type Store interface {
	CreateReap(ctx context.Context, r *model.Reap) error
	GetReap(ctx context.Context, id string) (*model.Reap, error)
	ListReaps(ctx context.Context, limit, offset int) ([]*model.Reap, int, error)
	UpdateReapStatus(ctx context.Context, id, status string) error
	UpdateReap(ctx context.Context, r *model.Reap) error
	GetReapStats(ctx context.Context) (*ReapStats, error)
	InsertEvent(ctx context.Context, ev *model.Event) error
	GetEvents(ctx context.Context, reapID string) ([]model.Event, error)
	Close() error
}
