package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	adapterdb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	pkgdb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
	pkgevents "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/events"
)

const (
	outboxBatchSize = 10
	outboxInterval  = 1 * time.Second
	sweepInterval   = 30 * time.Second
	eventsExchange  = "auction.events"
	dbLockTimeout   = 3 * time.Second
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down worker...")
		cancel()
	}()

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

	publisher, err := pkgevents.NewRabbitMQPublisher(amqpConn, eventsExchange)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// 3. Wiring
	txManager := pkgdb.NewPostgresTransactionManager(pool, dbLockTimeout)
	auctionRepo := adapterdb.NewPostgresAuctionRepository(pool)
	bidRepo := adapterdb.NewPostgresBidRepository(pool)
	outboxRepo := adapterdb.NewPostgresOutboxRepository(pool)
	auctionService := auctions.NewService(txManager, auctionRepo, bidRepo, outboxRepo, logger)

	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		outboxBatchSize,
		outboxInterval,
		eventsExchange,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting Outbox Relay...")
		return relay.Run(gctx)
	})

	// Expiry sweep: open auctions past their bidding window with no bids are
	// cancelled; ones with bids stay open for the farmer's decision.
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				closed, err := auctionService.CloseExpired(gctx, time.Now())
				if err != nil {
					logger.Error("Expiry sweep failed", "error", err)
					continue
				}
				if closed > 0 {
					logger.Info("Expired auctions cancelled", "count", closed)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped")
}
