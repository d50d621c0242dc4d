package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soenlit/health-buddy/common/database"
	logpkg "github.com/soenlit/health-buddy/common/logger"
	"github.com/soenlit/health-buddy/internal/config"
	httpapi "github.com/soenlit/health-buddy/internal/http"
	"github.com/soenlit/health-buddy/internal/ingest"
	"github.com/soenlit/health-buddy/internal/repository"
	"github.com/soenlit/health-buddy/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.New(logpkg.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "health-buddy",
		File:        cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting health-buddy", zap.String("database", cfg.Database.Redacted()))

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

	queue, closeQueue, err := service.NewIngestQueue(cfg, log)
	if err != nil {
		log.Fatal("Failed to create ingest queue", zap.Error(err))
	}
	defer closeQueue()

	repo := repository.NewPostgresMetricsRepository(db, log)
	processor := ingest.NewProcessor(repo, loc, cfg.Metrics.Source, log)

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes(httpapi.NewHealthHandler())
	router.RegisterWebhookRoutes(httpapi.NewWebhookHandler(queue, cfg.Webhook.Token, cfg.Webhook.MaxBodyBytes, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	// 监听系统信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// worker 不随信号取消，关闭队列后自行排空
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	var g errgroup.Group
	serverErr := make(chan error, 1)
	g.Go(func() error {
		err := srv.Start()
		serverErr <- err
		return err
	})
	g.Go(func() error {
		return queue.Run(workerCtx, processor.Handle)
	})

	select {
	case <-ctx.Done():
		log.Info("Received signal, shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 1. 停止接收请求 2. 关闭队列 3. 等待 worker 排空
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", zap.Error(err))
	}
	_ = queue.Close()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Service error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		log.Warn("Ingest worker did not drain in time, abandoning remaining jobs")
		cancelWorker()
		<-done
	}

	log.Info("Service stopped")
}
