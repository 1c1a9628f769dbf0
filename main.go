package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/extra/bundebug"

	"ms-scanning/internal/config"
	"ms-scanning/internal/database/migrations"
	"ms-scanning/internal/kafka"
	"ms-scanning/internal/logger"
	"ms-scanning/internal/middleware/ratelimit"
	"ms-scanning/internal/scans/db"
	"ms-scanning/internal/scans/qr"
	"ms-scanning/internal/scans/scan_api"
	scans "ms-scanning/internal/scans/service"
	"ms-scanning/internal/sse"
)

func connectDB(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), uint64(cfg.ConnRetries)), ctx)
	err = backoff.Retry(func() error {
		attempt++
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", attempt, cfg.ConnRetries+1))
		if err := sqldb.PingContext(ctx); err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			return err
		}
		return nil
	}, policy)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", attempt, err))
	}
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		bunDB.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
		log.Info("DATABASE", "Query logging enabled")
	}
	return bunDB
}

// connectRedis returns nil when Redis is not configured or unreachable;
// rate-limit statistics are then skipped.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if cfg.Addr == "" {
		log.Info("REDIS", "REDIS_ADDR not set, rate-limit statistics disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, statistics disabled: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Dir, logger.ParseLevel(cfg.Log.Level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	log.Info("APP", "Starting Scan Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB := connectDB(ctx, cfg.Database, log)
	defer bunDB.Close()
	store := &db.DB{Bun: bunDB}

	if cfg.Migrations.AutoMigrate {
		runner := migrations.NewRunner(cfg.Database.DSN, migrations.MigrateOptions{Dir: cfg.Migrations.Dir}, log)
		err := runner.Up()
		runner.Close()
		if err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("APP", fmt.Sprintf("Invalid scan timezone: %v", err))
	}

	events := sse.NewCounterEmitter()
	publishers := scans.Publishers{events}
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.ScanRecorded, cfg.Kafka.Topics.OfflineScans}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ScanRecorded)
		defer producer.Close()
		publishers = append(publishers, producer)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	scanService := scans.NewScanService(store, publishers, log, scans.Options{
		Location:      loc,
		MaxRetries:    cfg.Scan.MaxRetries,
		RetryInterval: cfg.Scan.RetryInterval,
		BulkMaxItems:  cfg.Scan.BulkMaxItems,
		ClockSkew:     cfg.Scan.ClockSkew,
		MaxOfflineAge: cfg.Scan.MaxOfflineAge,
	})

	var workers sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OfflineScans, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Start(ctx, scanService.HandleOfflineScan); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Offline scan consumer stopped: %v", err))
			}
		}()
	}

	routes := scan_api.RouteOptions{}
	if cfg.RateLimit.Enabled {
		var stats ratelimit.StatsStore
		if rdb := connectRedis(ctx, cfg.Redis, log); rdb != nil {
			defer rdb.Close()
			stats = ratelimit.NewRedisStatsStore(rdb, "scan-service:ratelimit", 24*time.Hour)
		}
		keyFn := ratelimit.ClientIPKey(cfg.RateLimit.TrustXForwardedFor)
		scanStore := ratelimit.NewStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		apiStore := ratelimit.NewStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		scanStore.StartJanitor(ctx, 2*time.Minute)
		apiStore.StartJanitor(ctx, 2*time.Minute)

		routes.ScanLimiter = ratelimit.Middleware(ratelimit.Options{Store: scanStore, Stats: stats, KeyFn: keyFn, Route: "scan", Logger: log})
		routes.APILimiter = ratelimit.Middleware(ratelimit.Options{Store: apiStore, Stats: stats, KeyFn: keyFn, Route: "api", Logger: log})
		log.Info("RATELIMIT", fmt.Sprintf("Rate limiting %.1f req/s, burst %d per client", cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}

	handler := &scan_api.Handler{
		ScanService:       scanService,
		CounterService:    scans.NewCounterService(store, loc),
		QR:                qr.NewGenerator(cfg.Server.PublicBaseURL),
		Store:             store,
		Events:            events,
		Logger:            log,
		DuplicateConflict: cfg.Scan.DuplicateConflict,
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      scan_api.NewRouter(handler, routes),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// Shutdown waits for open counter streams; closing the emitter ends them.
	server.RegisterOnShutdown(events.Close)

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Scan Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Scan Service shutdown complete")
	}
	workers.Wait()
}
