package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ms-boost/internal/activity"
	activity_api "ms-boost/internal/activity/api"
	"ms-boost/internal/auth"
	"ms-boost/internal/boost"
	"ms-boost/internal/boost/boost_api"
	boostdb "ms-boost/internal/boost/db"
	boostkafka "ms-boost/internal/boost/kafka"
	rediswrap "ms-boost/internal/boost/redis"
	"ms-boost/internal/config"
	"ms-boost/internal/database/migrations"
	"ms-boost/internal/kafka"
	"ms-boost/internal/listing"
	listingdb "ms-boost/internal/listing/db"
	"ms-boost/internal/listing/listing_api"
	"ms-boost/internal/listing/storage"
	"ms-boost/internal/logger"
	"ms-boost/internal/metrics"
	"ms-boost/internal/payment"
	"ms-boost/internal/sweeper"
	"ms-boost/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := cfg.Database.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	logger.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Creation falls back to the database's open-order index while Redis is down.
		logger.Warn("REDIS", fmt.Sprintf("Redis connection error, listing locks degraded: %v", err))
	} else {
		logger.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
	}
	return bunDB, redisClient
}

// accessLog writes one LogAPI line per request.
func accessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), time.Since(start).String())
		})
	}
}

func healthHandler(bunDB *bun.DB, redisClient *redis.Client, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "up", "redis": "up"}
		status := http.StatusOK
		if err := bunDB.PingContext(ctx); err != nil {
			checks["database"] = "down"
			status = http.StatusServiceUnavailable
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = "degraded"
		}
		resp := utils.SuccessResponse("boost service health", checks)
		resp.Success = status == http.StatusOK
		utils.WriteJSON(w, log, status, resp)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	logger := logger.New(logger.Options{
		Service: cfg.Log.Service,
		Dir:     cfg.Log.Dir,
		Level:   cfg.Log.Level,
		ToFile:  cfg.Log.ToFile,
	})
	defer logger.Close()
	logger.Info("APP", "Starting Boost Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Migrations.AutoMigrate {
		runner := migrations.NewRunner(bunDB.DB, migrations.MigrateOptions{MigrationsDir: cfg.Migrations.Dir, AutoMigrate: true}, logger)
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("MIGRATE", fmt.Sprintf("Failed to run migrations: %v", err))
		}
		// Runner.Close also closes the shared *sql.DB, so the runner is left open.
	}

	var m *metrics.MetricsManager
	if cfg.Metrics.Enabled {
		m = metrics.NewMetricsManager(cfg.Metrics.Namespace)
	}

	gateway, err := payment.NewGateway(cfg.Payment, logger)
	if err != nil {
		logger.Fatal("PAYMENT", fmt.Sprintf("Failed to initialise payment gateway: %v", err))
	}
	logger.Info("PAYMENT", fmt.Sprintf("Payment gateway: %s", gateway.Name()))

	activityDB := &activity.DB{Bun: bunDB}
	recorder := activity.NewRecorder(activityDB, m, logger)

	var events boost.EventPublisher
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		topics := cfg.Kafka.Topics.All()
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		defer producer.Close()
		events = boostkafka.NewProducer(producer, cfg.Kafka.Topics)

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, topics, cfg.Kafka.GroupID, logger)
		defer consumer.Close()
		logger.Info("KAFKA", fmt.Sprintf("Kafka wired to %v", cfg.Kafka.Brokers))
	} else {
		logger.Warn("KAFKA", "Kafka disabled, boost events are not published and the activity feed only records listings")
	}

	var blobs listing.BlobStore
	if cfg.Storage.Enabled {
		store, err := storage.NewMinioStore(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Fatal("STORAGE", fmt.Sprintf("Failed to initialise image storage: %v", err))
		}
		blobs = store
	} else {
		logger.Warn("STORAGE", "Image storage disabled, uploads will be rejected")
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth, logger)
	if err != nil {
		logger.Fatal("AUTH", fmt.Sprintf("Failed to initialise token verifier: %v", err))
	}
	if cfg.Auth.ClaimsCacheTTL > 0 {
		verifier = auth.NewCachingVerifier(verifier, redisClient, cfg.Auth.ClaimsCacheTTL, logger)
		logger.Info("AUTH", fmt.Sprintf("Verified claims cached in Redis for up to %s", cfg.Auth.ClaimsCacheTTL))
	}

	listingDB := &listingdb.DB{Bun: bunDB}
	listingService := listing.NewListingService(listingDB, blobs, recorder, m, logger, cfg.Listing)
	boostService := boost.NewBoostService(
		&boostdb.DB{Bun: bunDB},
		listingDB,
		rediswrap.NewRedis(redisClient, cfg.Redis.LockTTL, logger),
		gateway,
		events,
		m,
		logger,
		cfg.Boost,
	)

	listingHandler := listing_api.NewHandler(listingService, logger, cfg.Listing.MaxImageSize, cfg.Listing.MaxImages)
	boostHandler := boost_api.NewHandler(boostService, m, logger)
	activityHandler := activity_api.NewHandler(recorder, logger)
	authenticate := auth.Middleware(verifier, cfg.Auth.AdminRole, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(bunDB, redisClient, logger))
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/cars", func(r chi.Router) {
			listingHandler.PublicRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				listingHandler.ProtectedRoutes(r)
			})
		})
		logger.Info("ROUTER", "Listing routes registered under /api/cars")

		r.Route("/boost", func(r chi.Router) {
			r.Use(authenticate)
			boostHandler.Routes(r)
		})
		logger.Info("ROUTER", "Boost routes registered under /api/boost")

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(auth.RequireAdmin(logger))
			boostHandler.AdminRoutes(r)
			listingHandler.AdminRoutes(r)
			activityHandler.Routes(r)
		})
		logger.Info("ROUTER", "Admin routes registered under /api/admin")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go sweeper.New(boostService, cfg.Boost.SweepInterval, logger).Run(ctx)
	if consumer != nil {
		go consumer.Start(ctx, recorder.HandleMessage)
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Boost Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Boost Service shutdown complete")
	}
}
