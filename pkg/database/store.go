package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"formfiller/internal/config"
	"formfiller/internal/models"
	"formfiller/internal/store"
	"formfiller/pkg/utils"
)

var ErrUnknownUser = errors.New("unknown user")

// UserLookup finds an account by username.
type UserLookup func(ctx context.Context, username string) (*models.User, error)

// Open connects the configured backend and returns its store plus the
// account lookup used for login.
func Open(cfg *config.Config, log *zap.Logger) (store.Store, UserLookup, error) {
	switch cfg.Database.Driver {
	case "mysql":
		if err := InitDatabase(cfg, log); err != nil {
			return nil, nil, err
		}
		return store.NewGormStore(DB), GormUsers(DB), nil
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using local profile database", zap.String("path", cfg.Database.Path))
		users, err := StaticAdmin(cfg.Admin.Username, cfg.Admin.Password)
		if err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, users, nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

func GormUsers(db *gorm.DB) UserLookup {
	return func(ctx context.Context, username string) (*models.User, error) {
		var user models.User
		err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		if err != nil {
			return nil, err
		}
		return &user, nil
	}
}

// StaticAdmin serves the single configured admin account; used when there is
// no server database to keep accounts in.
func StaticAdmin(username, password string) (UserLookup, error) {
	if username == "" || password == "" {
		return func(context.Context, string) (*models.User, error) { return nil, ErrUnknownUser }, nil
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	admin := models.User{BaseModel: models.BaseModel{ID: 1}, Username: username, Password: hashed, Status: 1}
	return func(_ context.Context, name string) (*models.User, error) {
		if name != admin.Username {
			return nil, ErrUnknownUser
		}
		u := admin
		return &u, nil
	}, nil
}
