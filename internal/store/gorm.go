package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"formfiller/internal/models"
)

// GormStore keeps profiles in the server database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Order("updated_at desc").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func (s *GormStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *GormStore) UpsertProfile(ctx context.Context, p *models.Profile) error {
	if len(p.Actions) == 0 {
		return models.ErrEmptyProfile
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteProfile(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Profile{})
	if result.Error != nil {
		return fmt.Errorf("delete profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreateRun(ctx context.Context, r *models.Run) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateRun(ctx context.Context, r *models.Run) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (s *GormStore) ListRuns(ctx context.Context, profileID string, limit int) ([]models.Run, error) {
	var runs []models.Run
	err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("id desc").
		Limit(runLimit(limit)).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *GormStore) StaleRuns(ctx context.Context, startedBefore time.Time) ([]models.Run, error) {
	var runs []models.Run
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_time < ?", models.RunRunning, startedBefore).
		Order("id").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("stale runs: %w", err)
	}
	return runs, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
