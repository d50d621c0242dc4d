package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/common/database"
	logpkg "github.com/soenlit/health-buddy/common/logger"
	"github.com/soenlit/health-buddy/internal/config"
	"github.com/soenlit/health-buddy/internal/importer"
	"github.com/soenlit/health-buddy/internal/repository"
)

func main() {
	file := flag.String("file", "", "snapshot to import (.csv or .xlsx)")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: health-import -file snapshot.csv")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logpkg.New(logpkg.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "health-import",
		File:        cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if _, err := os.Stat(*file); err != nil {
		log.Fatal("File not found", zap.String("file", *file), zap.Error(err))
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := repository.Migrate(db, log); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Invalid timezone", zap.Error(err))
	}

	repo := repository.NewPostgresMetricsRepository(db, log)
	imp := importer.NewImporter(repo, loc, cfg.Metrics.Source, log)

	n, err := imp.ImportFile(context.Background(), *file)
	if err != nil {
		log.Error("Error during import", zap.Error(err))
		database.Close(db)
		os.Exit(1)
	}
	log.Info("Successfully imported data points", zap.Int("rows", n), zap.String("file", *file))
}
