package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/api"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/cache"
	adapterdb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/database"
	adapterevents "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/events"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/bids"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/settlement"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/wallets"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/auth"
	pkgdb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
)

const snapshotCacheTTL = 30 * time.Second

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Initialize Postgres Connection Pool
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	dbConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to RabbitMQ
	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		logger.Error("RABBITMQ_URL is not set")
		os.Exit(1)
	}

	amqpConn, err := amqp.Dial(rabbitURL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	// 3. Connect to Redis
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Error("REDIS_URL is not set")
		os.Exit(1)
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisURL})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Unable to ping redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("Redis Connected")

	// 4. Token verifier
	publicKey := os.Getenv("JWT_PUBLIC_KEY")
	if publicKey == "" {
		logger.Error("JWT_PUBLIC_KEY is not set")
		os.Exit(1)
	}
	verifier, err := auth.NewVerifier([]byte(publicKey), "agroboost")
	if err != nil {
		logger.Error("Failed to load JWT public key", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	auctionRepo := adapterdb.NewPostgresAuctionRepository(pool)
	bidRepo := adapterdb.NewPostgresBidRepository(pool)
	walletRepo := adapterdb.NewPostgresWalletRepository(pool)
	outboxRepo := adapterdb.NewPostgresOutboxRepository(pool)
	snapshots := cache.NewSnapshotCache(rdb, snapshotCacheTTL)

	// 6. Initialize Services (Domain Layer)
	auctionService := auctions.NewService(txManager, auctionRepo, bidRepo, outboxRepo, logger)
	bidLedger := bids.NewLedger(txManager, auctionRepo, bidRepo, outboxRepo)
	walletLedger := wallets.NewLedger(txManager, walletRepo)
	settlementEngine := settlement.NewEngine(txManager, auctionRepo, bidRepo, walletLedger, outboxRepo, logger)

	// 7. Live feed: events consumed from RabbitMQ fan out to SSE watchers
	hub := adapterevents.NewFeedHub()
	feedConsumer := adapterevents.NewFeedConsumer(amqpConn, auctionRepo, snapshots, hub, logger)
	go func() {
		logger.Info("Starting Feed Consumer...")
		if err := feedConsumer.Run(ctx); err != nil {
			logger.Error("Feed Consumer stopped", "error", err)
		}
	}()

	// 8. HTTP server
	handler := api.NewHandler(auctionService, bidLedger, walletLedger, settlementEngine, snapshots, hub, logger)
	router := api.NewRouter(handler, verifier)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("Starting AgroBoost API", "addr", addr)

	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
		cancel()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
