package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/common/database"
	logpkg "github.com/soenlit/health-buddy/common/logger"
	"github.com/soenlit/health-buddy/internal/config"
	"github.com/soenlit/health-buddy/internal/insight"
	"github.com/soenlit/health-buddy/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	dryRun := flag.Bool("dry-run", false, "print the insight to stdout without delivering it")
	schedule := flag.String("schedule", "", "cron expression; keep running and report on this schedule")
	window := flag.Int("window", 0, "aggregation window in days (default REPORT_WINDOW_DAYS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *window > 0 {
		cfg.Report.WindowDays = *window
	}
	if *schedule == "" {
		*schedule = cfg.Report.Schedule
	}

	log, err := logpkg.New(logpkg.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "health-report",
		File:        cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if *dryRun {
		if cfg.Gemini.APIKey == "" {
			log.Error("GEMINI_API_KEY is missing")
		}
		if cfg.Discord.WebhookURL == "" {
			log.Error("DISCORD_WEBHOOK_URL is missing")
		}
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer database.Close(db)

	report, cleanup, err := service.NewReportServiceFromConfig(cfg, db, log)
	if err != nil {
		log.Error("Failed to create report service", zap.Error(err))
		return 1
	}
	defer cleanup()

	// -dry-run 总是只跑一次
	if *schedule != "" && !*dryRun {
		return runScheduled(report, *schedule, cfg, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := report.RunOnce(ctx, *dryRun)
	if err != nil {
		log.Error("Health report failed", zap.Error(err))
		return 1
	}

	if *dryRun {
		if result.Insight.Outcome == insight.OutcomeInsufficientData {
			log.Warn("Database seems to have insufficient data for analysis")
		}
		fmt.Println(result.Insight.Text)
	}
	return 0
}

func runScheduled(report *service.ReportService, spec string, cfg *config.Config, log *zap.Logger) int {
	loc, err := cfg.Location()
	if err != nil {
		log.Error("Invalid timezone", zap.Error(err))
		return 1
	}
	sched, err := service.NewReportScheduler(report, spec, loc, log)
	if err != nil {
		log.Error("Invalid schedule", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	<-ctx.Done()
	log.Info("Received signal, stopping scheduler")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		log.Warn("Scheduler stopped before the running report finished", zap.Error(err))
	}
	return 0
}
