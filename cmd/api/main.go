package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/storefront-order-core/internal/adapters/mongo"
	"github.com/robertarktes/storefront-order-core/internal/adapters/postgres"
	"github.com/robertarktes/storefront-order-core/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/storefront-order-core/internal/adapters/redis"
	"github.com/robertarktes/storefront-order-core/internal/booking"
	"github.com/robertarktes/storefront-order-core/internal/cart"
	"github.com/robertarktes/storefront-order-core/internal/config"
	"github.com/robertarktes/storefront-order-core/internal/fulfillment"
	httphandler "github.com/robertarktes/storefront-order-core/internal/http"
	"github.com/robertarktes/storefront-order-core/internal/idempotency"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"github.com/robertarktes/storefront-order-core/internal/order"
	"github.com/robertarktes/storefront-order-core/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool, cfg.LockTimeout)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("storefront")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	cartStore := redisadapter.NewCartStore(redisClient, cfg.CartTTL)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	if _, err := rabbit.NewPublisher(rabbitConn); err != nil {
		// The API never publishes directly (the outbox relay does), but
		// declaring the exchange up front catches broker misconfig early.
		log.Fatalf("failed to declare exchange: %v", err)
	}

	bookings := booking.NewManager(repo, logger)
	orders := order.NewEngine(repo, bookings, catalog, logger)
	fulfill := fulfillment.NewDispatcher(repo, bookings, logger)
	carts := cart.NewService(cartStore, catalog, logger)

	handlers := httphandler.NewHandlers(cfg, carts, orders, bookings, fulfill, idemp, catalog, audit, logger)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
