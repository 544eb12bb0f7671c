package utils

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"formfiller/internal/models"
)

// EnsureAdmin creates the admin account when it does not exist yet. An empty
// password leaves the database untouched.
func EnsureAdmin(db *gorm.DB, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	var existing models.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("look up admin: %w", err)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	user := models.User{Username: username, Password: hashed, Status: 1}
	if err := db.Create(&user).Error; err != nil {
		return false, fmt.Errorf("create admin %s: %w", username, err)
	}
	return true, nil
}
