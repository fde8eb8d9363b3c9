// Точка входа Archivarius — сервиса приёма файлов и асинхронного
// сжатия их в архивы.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bigkaa/archivarius/internal/api/handlers"
	"github.com/bigkaa/archivarius/internal/api/middleware"
	"github.com/bigkaa/archivarius/internal/config"
	"github.com/bigkaa/archivarius/internal/docstore"
	"github.com/bigkaa/archivarius/internal/repository"
	"github.com/bigkaa/archivarius/internal/server"
	"github.com/bigkaa/archivarius/internal/service"
	"github.com/bigkaa/archivarius/internal/storage/filestore"
	"github.com/bigkaa/archivarius/internal/workflow"
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
	logger.Info("Archivarius запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
	)

	// --- Инициализация компонентов ---

	ctx := context.Background()

	// 1. Document store
	var docs docstore.Store
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pg, err := docstore.NewPostgresStore(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		docs = pg
	default:
		logger.Warn("Используется in-memory document store: записи будут потеряны при рестарте")
		docs = docstore.NewMemoryStore()
	}
	defer docs.Close()

	// 2. Репозитории с LRU-кэшем пути чтения
	files := repository.NewFileRepository(docs, cfg.CacheSize, cfg.CacheTTL)
	archives := repository.NewArchiveRepository(docs, cfg.CacheSize, cfg.CacheTTL)

	// 3. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Движок процессов с дисковым журналом
	journal, err := workflow.NewJournal(cfg.JournalDir)
	if err != nil {
		logger.Error("Ошибка инициализации журнала процессов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	engine := workflow.NewEngine(journal, logger)

	// 5. Активности и оркестратор процесса сжатия
	activities := service.NewActivities(files, archives, store, logger)
	service.NewOrchestrator(activities, logger).Register(engine)

	// Восстановление запусков, не завершённых до рестарта
	resumed, err := engine.Resume()
	if err != nil {
		logger.Error("Ошибка восстановления запусков", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if resumed > 0 {
		logger.Warn("Возобновлены незавершённые процессы сжатия", slog.Int("count", resumed))
	}

	// 6. Сервис загрузки и HTTP handlers
	uploadSvc := service.NewUploadService(files, archives, store, engine, logger)
	apiHandler := handlers.NewAPIHandler(uploadSvc, files, archives, store, docs, cfg.MaxUploadSize, logger)

	// 7. Middleware: метрики, логирование, опционально JWT
	middlewares := []func(http.Handler) http.Handler{
		middleware.Metrics(),
		middleware.Logging(logger),
	}
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.HTTPReadTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares,
			server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health", "/metrics"))
		logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		logger.Warn("AR_JWKS_URL не задан, запуск без аутентификации")
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, middlewares...)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown движка процессов ---
	logger.Info("Остановка движка процессов...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Движок процессов остановлен с незавершёнными запусками, они будут возобновлены после рестарта",
			slog.String("error", err.Error()))
	}

	logger.Info("Archivarius остановлен")
}
