package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/campus-dispatch/internal/auth"
	"github.com/example/campus-dispatch/internal/config"
	"github.com/example/campus-dispatch/internal/estimate"
	"github.com/example/campus-dispatch/internal/httpapi"
	"github.com/example/campus-dispatch/internal/lifecycle"
	"github.com/example/campus-dispatch/internal/location"
	"github.com/example/campus-dispatch/internal/logging"
	"github.com/example/campus-dispatch/internal/mail"
	"github.com/example/campus-dispatch/internal/rating"
	"github.com/example/campus-dispatch/internal/realtime"
	"github.com/example/campus-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var store storage.Store
	if cfg.PGDSN != "" {
		migrations := ""
		if cfg.RunMigrations {
			migrations = cfg.MigrationsDir
		}
		db, err := storage.OpenDB(cfg.PGDSN, migrations)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer db.Close()
		store = storage.NewPostgresStore(db)
	} else {
		logger.Warn("PG_DSN not set; using in-memory store")
		store = storage.NewMemoryStore()
	}

	var codes auth.CodeStore
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		codes = auth.NewRedisCodes(rc)
	} else {
		logger.Warn("REDIS_ADDR not set; verification codes held in process")
		codes = auth.NewMemoryCodes()
	}

	var mailer mail.Mailer = mail.NopMailer{}
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPAddr, cfg.MailFrom)
	}

	var producer *location.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = location.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	var est estimate.Estimator = estimate.SpeedEstimator{SpeedMps: cfg.DefaultSpeedMps}
	if cfg.OSRMEndpoint != "" {
		est = estimate.NewCached(estimate.NewOSRMClient(cfg.OSRMEndpoint, est), 5*time.Minute)
	}

	// the hub's location callback binds to the service created just
	// below; the closure resolves it at call time
	var locSvc *location.Service
	hub := realtime.NewHub(
		httpapi.NewTopicAuthorizer(store),
		func(ctx context.Context, reporterID, orderID string, lat, lon, accuracy float64) error {
			_, err := locSvc.Record(ctx, reporterID, orderID, lat, lon, accuracy)
			return err
		},
		logger,
	)

	engine := lifecycle.NewEngine(store, hub, est, logger)
	var streamProducer location.StreamProducer
	if producer != nil {
		streamProducer = producer
	}
	locSvc = location.NewService(store, hub, streamProducer, logger)
	ratings := rating.NewService(store, logger)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := auth.NewService(store, tokens, codes, mailer, cfg.CodeTTL, logger)

	srv := httpapi.NewServer(httpapi.Deps{
		Engine:   engine,
		Location: locSvc,
		Ratings:  ratings,
		Auth:     authSvc,
		Verifier: tokens,
		Hub:      hub,
		Store:    store,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("campus-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
