package database

import (
	"fmt"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/config"
	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the Postgres pool and applies the configured schema strategy.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Log.Info("Database connected successfully")
	return db, nil
}

// Models lists every table the chat subsystem owns, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Chat{},
		&models.ChatParticipant{},
		&models.Message{},
	}
}

// AutoMigrate lets gorm reconcile the schema. Used in development and tests.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Log.Error("Migration failed", zap.Error(err))
		return err
	}
	logger.Log.Info("Database migration completed")
	return nil
}
