// Package store persists profiles and replay history.
package store

import (
	"context"
	"errors"
	"time"

	"formfiller/internal/models"
)

var ErrNotFound = errors.New("record not found")

// ProfileStore keeps saved profiles. Actions and descriptors round-trip
// through storage unchanged.
type ProfileStore interface {
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error
	DeleteProfile(ctx context.Context, id string) error
}

// RunStore keeps replay history.
type RunStore interface {
	CreateRun(ctx context.Context, r *models.Run) error
	UpdateRun(ctx context.Context, r *models.Run) error
	ListRuns(ctx context.Context, profileID string, limit int) ([]models.Run, error)
	// StaleRuns lists runs still marked running that started before the cutoff.
	StaleRuns(ctx context.Context, startedBefore time.Time) ([]models.Run, error)
}

type Store interface {
	ProfileStore
	RunStore
	Close() error
}

const defaultRunLimit = 50

func runLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultRunLimit
	}
	return limit
}
