package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/common/database"
	"github.com/soenlit/health-buddy/internal/domain"
)

// Migrate creates or updates the health_metrics table and its unique index.
// Safe to run on every start.
func Migrate(db *sql.DB, logger *zap.Logger) error {
	gdb, err := database.NewGormDB(db)
	if err != nil {
		return err
	}
	if err := gdb.AutoMigrate(domain.Tables...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	logger.Info("Schema migrated", zap.Int("tables", len(domain.Tables)))
	return nil
}
