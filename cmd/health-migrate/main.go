package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/common/database"
	logpkg "github.com/soenlit/health-buddy/common/logger"
	"github.com/soenlit/health-buddy/internal/config"
	"github.com/soenlit/health-buddy/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logpkg.New(logpkg.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "health-migrate",
		File:        cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Connecting to database", zap.String("database", cfg.Database.Redacted()))
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := repository.Migrate(db, log); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}
	log.Info("Migration complete")
}
