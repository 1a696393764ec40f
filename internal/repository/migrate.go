package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/anonrelay/internal/model"
)

// AutoMigrate 初始化五张逻辑表
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&model.User{},
		&model.Message{},
		&model.Delivery{},
		&model.BanRecord{},
		&model.Report{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
	}
	return nil
}
