package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"formfiller/internal/config"
	"formfiller/internal/models"
	"formfiller/pkg/utils"
)

var DB *gorm.DB

func InitDatabase(cfg *config.Config, log *zap.Logger) error {
	var err error

	dsn := cfg.GetDSN()

	level := logger.Warn
	if cfg.Server.Mode == "debug" {
		level = logger.Info
	}
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connected", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Database))

	if err := AutoMigrate(DB); err != nil {
		return err
	}
	log.Info("database migration completed")

	return SeedDefaultData(DB, cfg, log)
}

func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Run{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SeedDefaultData creates the configured admin account on first start.
func SeedDefaultData(db *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	created, err := utils.EnsureAdmin(db, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		return err
	}
	if created {
		log.Info("admin account created", zap.String("username", cfg.Admin.Username))
	}
	return nil
}
