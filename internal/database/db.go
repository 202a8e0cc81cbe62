package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Baaaki/resource-hub/internal/config"
	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Open picks the driver from the URL: postgres:// and postgresql:// go to
// PostgreSQL, anything else is treated as a SQLite file path or DSN.
func Open(databaseURL string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		dialector = postgres.Open(databaseURL)
	} else {
		if !strings.HasPrefix(databaseURL, "file:") {
			if err := os.MkdirAll(filepath.Dir(databaseURL), 0755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		dialector = sqlite.Open(withForeignKeys(databaseURL))
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// withForeignKeys turns on SQLite foreign key enforcement so ON DELETE CASCADE holds.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Resource{})
}

func Connect(cfg *config.Config) {
	var err error

	DB, err = Open(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect database", zap.Error(err))
	}

	logger.Log.Info("Database connected successfully")
}

func Migrate() {
	if err := AutoMigrate(DB); err != nil {
		logger.Log.Fatal("Migration failed", zap.Error(err))
	}

	logger.Log.Info("Database migration completed")
}
