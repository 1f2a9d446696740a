package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-filescan-backend/config"
	_ "go-filescan-backend/docs" // Important for Swagger
	v1 "go-filescan-backend/internal/delivery/http/v1"
	"go-filescan-backend/internal/domain"
	"go-filescan-backend/internal/repository/postgres"
	"go-filescan-backend/internal/usecase"
	"go-filescan-backend/migrations"
	"go-filescan-backend/pkg/database"
	"go-filescan-backend/pkg/events"
	"go-filescan-backend/pkg/logger"
	"go-filescan-backend/pkg/redis"
	"go-filescan-backend/pkg/security"
	"go-filescan-backend/pkg/security/antivirus"
	"go-filescan-backend/pkg/storage"
	"go-filescan-backend/pkg/validation"
)

// @title           File Scan Backend API
// @version         1.0
// @description     Virus scanning pipeline for uploaded files.
// @host            localhost:8080
// @BasePath        /v1
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Setup Logger
	logger.Init(cfg.LogLevel)
	logger.Log.Info("Starting file scan backend", "port", cfg.Port, "env", cfg.Environment)

	ctx := context.Background()

	// 3. Setup Database
	dbPool, err := database.NewPostgresConnection(ctx, cfg.DBUrl, database.PoolConfig{})
	if err != nil {
		logger.Log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := database.Migrate(ctx, dbPool, migrations.FS); err != nil {
		logger.Log.Error("Failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// 4. Security event logging
	secLog := security.InitSecurityLogger("filescan-service", cfg.Environment)
	defer secLog.Sync()
	if cfg.SecurityLogToDB {
		secLog.SetPersistFunc(security.NewSecurityEventRepository(dbPool).CreatePersistFunc())
	}

	// 5. Object storage
	store, err := storage.New(ctx, storage.Options{
		Provider: cfg.StorageProvider,
		S3: storage.S3ClientConfig{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			Region:          cfg.S3Region,
			WasabiEndpoint:  cfg.WasabiEndpoint,
		},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
		},
	})
	if err != nil {
		logger.Log.Error("Failed to configure object storage", "provider", cfg.StorageProvider, "error", err)
		os.Exit(1)
	}

	// 6. Scanner cascade: cloud, then local daemon, then patterns
	var scanners []antivirus.Scanner
	var cloud usecase.CloudVerifier
	if cfg.VirusTotalAPIKey != "" {
		vt := antivirus.NewVirusTotalScanner(antivirus.VirusTotalConfig{
			APIKey:       cfg.VirusTotalAPIKey,
			BaseURL:      cfg.VirusTotalBaseURL,
			PollAttempts: cfg.VirusTotalPollAttempts,
			PollInterval: cfg.VirusTotalPollInterval,
		})
		scanners = append(scanners, vt)
		cloud = vt
	}

	var clamav *antivirus.ClamAVScanner
	if addr := cfg.ClamAVAddress(); addr != "" {
		clamav = antivirus.NewClamAVScanner(addr, cfg.ClamAVTimeout)
		scanners = append(scanners, clamav)
	}

	scanners = append(scanners, antivirus.NewPatternScanner(cfg.ScanPatterns))
	cascade := antivirus.NewCascade(scanners...)
	logger.Log.Info("Scanner cascade configured", "tiers", cascade.Tiers())

	// 7. Event publishing
	var publisher domain.EventPublisher = events.Noop{}
	var natsPub *events.Publisher
	if cfg.NATSURL != "" {
		natsPub, err = events.Connect(cfg.NATSURL)
		if err != nil {
			logger.Log.Warn("NATS unavailable, scan events will not be published", "error", err)
		} else {
			publisher = natsPub
			defer natsPub.Close()
		}
	}

	// 8. Redis (rate limiting)
	if cfg.UpstashRedisURL != "" {
		err := redis.Initialize(ctx, redis.Config{
			URL:      cfg.UpstashRedisURL,
			Password: cfg.UpstashRedisPassword,
		})
		if err != nil {
			logger.Log.Warn("Redis unavailable, rate limiting fails open", "error", err)
		} else {
			defer redis.Close()
		}
	}
	scanLimiter := security.NewScanLimiter(redis.Client(), cfg.ScanRateLimitPerMinute)

	// 9. Setup UseCases
	scanRepo := postgres.NewScanRecordRepository(dbPool)
	quarantine := usecase.NewQuarantineManager(store, publisher, secLog)

	scanUC := usecase.NewScanUsecase(usecase.ScanDependencies{
		Repo:       scanRepo,
		Storage:    store,
		Cascade:    cascade,
		Cloud:      cloud,
		Quarantine: quarantine,
		Publisher:  publisher,
		SecLog:     secLog,
		Validate:   validation.New(),
	}, usecase.ScanOptions{
		MaxFileSizeBytes:     cfg.MaxFileSizeBytes(),
		QuarantineSuspicious: cfg.QuarantineSuspicious,
	})

	healthDeps := usecase.HealthDependencies{
		Tiers:    cascade.Tiers(),
		Database: dbPool,
	}
	if clamav != nil {
		healthDeps.ClamAV = clamav
	}
	if redis.Client() != nil {
		healthDeps.Redis = usecase.PingFunc(redis.HealthCheck)
	}
	if cfg.StorageHealthBucket != "" {
		healthDeps.Storage = usecase.PingFunc(func(ctx context.Context) error {
			return store.Ping(ctx, cfg.StorageHealthBucket)
		})
	}
	if natsPub != nil {
		healthDeps.NATS = natsPub
	}
	healthUC := usecase.NewHealthUsecase(healthDeps)

	// 10. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		ScanUC:         scanUC,
		HealthUC:       healthUC,
		ScanLimiter:    scanLimiter,
		SecurityLogger: secLog,
		Config:         cfg,
	})

	// 11. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// In-flight scans may be waiting on cloud polling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}
