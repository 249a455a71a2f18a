package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/apartment-board/internal/config"
	"github.com/iliyamo/apartment-board/internal/database"
	"github.com/iliyamo/apartment-board/internal/handler"
	"github.com/iliyamo/apartment-board/internal/logger"
	"github.com/iliyamo/apartment-board/internal/metrics"
	"github.com/iliyamo/apartment-board/internal/middleware"
	"github.com/iliyamo/apartment-board/internal/notify"
	"github.com/iliyamo/apartment-board/internal/queue"
	"github.com/iliyamo/apartment-board/internal/repository"
	"github.com/iliyamo/apartment-board/internal/router"
	"github.com/iliyamo/apartment-board/internal/service"
	"github.com/iliyamo/apartment-board/internal/token"
	"github.com/iliyamo/apartment-board/internal/validation"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.New(config.LoadLogConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pinger, closeStore := openStore(ctx, cfg, zl)
	defer closeStore()

	rec := metrics.NewRecorder()

	// Mail transport: SMTP when configured, otherwise mails are only logged.
	var transport notify.MailTransport = notify.NewLogTransport(zl)
	if cfg.SMTPHost != "" {
		smtp, err := notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
		})
		if err != nil {
			zl.Fatal("smtp transport", zap.Error(err))
		}
		transport = smtp
	}
	dispatcher, err := notify.NewDispatcher(transport, cfg.MailFrom, cfg.BaseURL, zl)
	if err != nil {
		zl.Fatal("mail templates", zap.Error(err))
	}

	var notifier service.Notifier = dispatcher
	if cfg.NotifyMode == config.NotifyQueue {
		notifier = queue.NewPublisher(cfg.RabbitMQURL, cfg.NotifyQueue, zl)
		consumer := queue.NewConsumer(cfg.RabbitMQURL, cfg.NotifyQueue, dispatcher, zl)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	svc := service.NewListingService(store, validation.New(), token.NewAuthority(), notifier, service.Options{
		SoftDelete: cfg.SoftDelete,
		PageSize:   cfg.PageSize,
		Logger:     zl,
		Metrics:    rec,
	})

	// Redis backs the response cache and the rate limiter. Without it the
	// cache lives in process and writes are not rate limited.
	cacheCfg := config.LoadCacheConfig()
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	var cacheStore middleware.ResponseStore
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		cacheStore = middleware.NewRedisStore(rdb)
	} else {
		zl.Warn("redis unavailable; using in-process response cache")
		cacheStore = middleware.NewLocalStore(cacheCfg.TTL, cacheCfg.LocalCleanup)
	}
	limiter := middleware.TokenBucket(config.LoadRateLimitConfig(), rdb, zl)
	purge := middleware.PurgeOnWrite(cacheCfg, cacheStore, zl)

	renderer, err := handler.NewRenderer()
	if err != nil {
		zl.Fatal("page templates", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(zl))
	e.Use(middleware.SecurityHeaders())

	router.RegisterRoutes(e, pinger, rec)
	router.RegisterWeb(e, handler.NewWebHandler(svc, cfg.PageSize, cfg.FlashSecret, zl), limiter, purge)
	router.RegisterAPI(e, handler.NewAPIHandler(svc, zl),
		[]echo.MiddlewareFunc{middleware.ResponseCache(cacheCfg, cacheStore)},
		[]echo.MiddlewareFunc{limiter, purge},
	)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.String("notify", cfg.NotifyMode),
			zap.Bool("soft_delete", cfg.SoftDelete),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

// openStore selects the listing store. The returned pinger is nil for the
// in-memory store so the health check does not depend on a database.
func openStore(ctx context.Context, cfg config.Config, zl *zap.Logger) (service.ListingStore, handler.Pinger, func()) {
	if cfg.StoreDriver == config.StoreMemory {
		zl.Warn("using in-memory store; listings are lost on restart")
		return repository.NewMemoryListingRepo(), nil, func() {}
	}

	dbCfg := database.Config{User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName}
	if cfg.DBMigrate {
		if err := database.Migrate(dbCfg, zl); err != nil {
			zl.Fatal("migrate", zap.Error(err))
		}
	}
	db, err := database.Open(ctx, dbCfg)
	if err != nil {
		zl.Fatal("database", zap.Error(err))
	}
	return repository.NewListingRepo(db), db, func() { _ = db.Close() }
}
