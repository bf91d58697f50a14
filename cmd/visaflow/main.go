// Точка входа Visaflow — сервиса приёма документов визовых заявок.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/visaflow/visaflow/internal/api/handlers"
	"github.com/visaflow/visaflow/internal/api/middleware"
	"github.com/visaflow/visaflow/internal/authz"
	"github.com/visaflow/visaflow/internal/broker"
	"github.com/visaflow/visaflow/internal/config"
	"github.com/visaflow/visaflow/internal/database"
	"github.com/visaflow/visaflow/internal/queue"
	"github.com/visaflow/visaflow/internal/repository"
	"github.com/visaflow/visaflow/internal/server"
	"github.com/visaflow/visaflow/internal/service"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Visaflow запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("queue_mode", cfg.QueueMode),
		slog.Int("workers", cfg.Workers),
	)

	// --- Инициализация компонентов ---

	ctx := context.Background()

	// 1. PostgreSQL: миграции + пул подключений
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 2. Дисковые хранилища
	store, err := diskstore.NewManager(map[string]string{
		diskstore.StoreTemp:    cfg.TempDir,
		diskstore.StoreDurable: cfg.DurableDir,
	})
	if err != nil {
		logger.Error("Ошибка инициализации хранилищ", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Очередь дескрипторов
	var q queue.Queue
	switch cfg.QueueMode {
	case config.QueueModeKafka:
		q = queue.NewKafkaQueue(queue.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger)
	default:
		q = queue.NewMemoryQueue(cfg.MemoryQueueSize)
	}
	defer q.Close()

	// 4. Брокер realtime-каналов
	hub := broker.NewHub(cfg.SubscriberBuffer, logger)

	// 5. Репозитории
	apps := repository.NewApplicationRepository(pool)
	cats := repository.NewCategoryRepository(pool)
	files := repository.NewFileRepository(pool)

	// 6. Сервисы
	intakeSvc := service.NewIntakeService(cfg, apps, cats, store, q, logger)

	ingestSvc := service.NewIngestService(apps, cats, files, store, q, hub, cfg.Workers, logger)
	ingestSvc.Start(ctx)
	defer ingestSvc.Stop()

	janitorSvc := service.NewJanitorService(store, cfg.JanitorInterval, cfg.TempTTL, logger)
	janitorSvc.Start(ctx)
	defer janitorSvc.Stop()

	// 7. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Handlers
	channelAuth := authz.NewChannelAuthorizer(apps, logger)
	h := server.Handlers{
		Applications: handlers.NewApplicationsHandler(apps, files, store, logger),
		Files:        handlers.NewFilesHandler(intakeSvc, apps, cats, files, store, logger),
		Categories:   handlers.NewCategoriesHandler(cats, logger),
		Events:       handlers.NewEventsHandler(hub, channelAuth, cfg.SSEHeartbeat, logger),
		Health:       handlers.NewHealthHandler(cfg.TempDir, cfg.DurableDir, database.NewReadinessChecker(pool)),
	}

	// 9. HTTP-сервер: metrics → logging → JWT (health и metrics публичные)
	srv := server.New(cfg, logger, h,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
