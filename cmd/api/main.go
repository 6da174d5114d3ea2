package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/shortlink/internal/auth"
	"github.com/SergeiKhy/shortlink/internal/codec"
	"github.com/SergeiKhy/shortlink/internal/config"
	"github.com/SergeiKhy/shortlink/internal/handler"
	"github.com/SergeiKhy/shortlink/internal/metrics"
	"github.com/SergeiKhy/shortlink/internal/middleware"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"github.com/SergeiKhy/shortlink/internal/sequence"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = repository.EnsureSchema(ctx, db)
	cancel()
	if err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	linkRepo := repository.NewLinkRepository(db)
	clickRepo := repository.NewClickRepository(db)
	userRepo := repository.NewUserRepository(db)

	localCache, err := repository.NewLocalCache(cfg.Cache.LocalMaxItems)
	if err != nil {
		logger.Fatal("Failed to create local cache", zap.Error(err))
	}
	defer localCache.Close()
	cacheRepo := repository.NewTieredCache(localCache, repository.NewCacheRepository(redis))

	seq, err := newSequence(cfg, db, redis, linkRepo, logger)
	if err != nil {
		logger.Fatal("Failed to init sequence", zap.Error(err))
	}

	tokens, err := auth.NewHS256Service(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to init token service", zap.Error(err))
	}

	// Инициализация сервисов
	linkService := service.NewLinkService(linkRepo, cacheRepo, seq, logger, service.WithCacheTTL(cfg.Cache.TTL))
	authService := service.NewAuthService(userRepo, tokens, auth.NewPasswordHasher(cfg.Auth.BcryptCost), logger)

	// Инициализация процессора кликов (Worker Pool)
	clickProcessor := service.NewClickProcessor(clickRepo, linkRepo, logger)
	clickProcessor.Start()
	defer clickProcessor.Stop()

	// Инициализация middleware
	apiLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Name:              "api",
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	}, logger)
	defer apiLimiter.Stop()

	authLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Name:              "auth",
		RequestsPerSecond: cfg.RateLimit.AuthRequestsPerSecond,
		BurstSize:         cfg.RateLimit.AuthBurstSize,
		CleanupInterval:   time.Minute,
	}, logger)
	defer authLimiter.Stop()

	userLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Name:              "user",
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	}, logger)
	defer userLimiter.Stop()

	// Настройка роутера
	router := handler.NewRouter(handler.RouterDeps{
		LinkService:    linkService,
		AuthService:    authService,
		ClickProcessor: clickProcessor,
		Tokens:         tokens,
		Health: map[string]handler.Pinger{
			"postgres": db,
			"redis":    redis,
		},
		APILimiter:     apiLimiter,
		AuthLimiter:    authLimiter,
		UserLimiter:    userLimiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		BaseURL:        cfg.App.BaseURL,
		RedirectStatus: cfg.App.RedirectStatus,
		MetricsHandler: promhttp.Handler(),
		Logger:         logger,
	})

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("sequence", cfg.Sequence.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newSequence выбирает источник идентификаторов. Только postgres и redis
// безопасны для нескольких экземпляров сервиса.
func newSequence(
	cfg *config.Config,
	db *repository.PostgresDB,
	redis *repository.RedisDB,
	linkRepo repository.LinkRepository,
	logger *zap.Logger,
) (sequence.Sequence, error) {
	switch cfg.Sequence.Backend {
	case config.SequencePostgres:
		counter := repository.NewPostgresCounter(db, repository.LinkSequenceName, cfg.Sequence.Start)
		return sequence.NewBlock(counter, cfg.Sequence.BlockSize), nil

	case config.SequenceRedis:
		counter, err := repository.NewRedisCounter(redis, repository.LinkSequenceName, cfg.Sequence.Start)
		if err != nil {
			return nil, err
		}
		return sequence.NewBlock(counter, cfg.Sequence.BlockSize), nil

	case config.SequenceMemory:
		// граница хранится в той же строке id_sequences, что и у postgres-бэкенда
		mark := repository.NewPostgresCounter(db, repository.LinkSequenceName, cfg.Sequence.Start)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		seq, err := newMemorySequence(ctx, linkRepo, mark, cfg.Sequence.Start)
		if err != nil {
			return nil, err
		}
		logger.Warn("In-memory sequence is safe only for a single instance",
			zap.String("start", seq.Peek().String()),
		)
		return seq, nil
	}
	return nil, fmt.Errorf("unknown sequence backend %q", cfg.Sequence.Backend)
}

// newMemorySequence продолжает после наибольшего из сохранённой границы
// и последнего кода в БД, поэтому рестарт не выдаёт коды удалённых ссылок
func newMemorySequence(
	ctx context.Context,
	linkRepo repository.LinkRepository,
	mark sequence.HighWaterMark,
	configured *big.Int,
) (*sequence.Durable, error) {
	floor, err := resumeStart(ctx, linkRepo, configured)
	if err != nil {
		return nil, err
	}
	return sequence.NewDurable(ctx, mark, floor)
}

// resumeStart следующий после последнего сохранённого кода, но не ниже configured.
// Ссылки, созданные до появления границы в id_sequences, учитываются только здесь.
func resumeStart(ctx context.Context, linkRepo repository.LinkRepository, configured *big.Int) (*big.Int, error) {
	latest, err := linkRepo.LatestShortCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest short code: %w", err)
	}
	if latest == "" {
		return configured, nil
	}

	n, err := codec.Decode(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to decode latest short code %q: %w", latest, err)
	}
	n.Add(n, big.NewInt(1))
	if n.Cmp(configured) < 0 {
		return configured, nil
	}
	return n, nil
}
