package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	mongoadapter "github.com/robertarktes/storefront-order-core/internal/adapters/mongo"
	"github.com/robertarktes/storefront-order-core/internal/adapters/postgres"
	"github.com/robertarktes/storefront-order-core/internal/booking"
	"github.com/robertarktes/storefront-order-core/internal/config"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"github.com/robertarktes/storefront-order-core/internal/order"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

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
	catalog := mongoadapter.NewCatalogRepository(mongoClient.Database("storefront"), logger)

	bookings := booking.NewManager(repo, logger)
	orders := order.NewEngine(repo, bookings, catalog, logger)

	worker := NewExpiryWorker(repo, orders, cfg.OrderTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// ExpiryWorker cancels orders that sat unpaid past the TTL. Each cancel
// is one transaction that also cancels the order's bookings, returning
// their seats to the ledger.
type ExpiryWorker struct {
	repo     *postgres.Repository
	orders   *order.Engine
	orderTTL time.Duration
	logger   observability.Logger
}

func NewExpiryWorker(repo *postgres.Repository, orders *order.Engine, orderTTL time.Duration, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{repo: repo, orders: orders, orderTTL: orderTTL, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ids, err := w.repo.GetStaleOrders(ctx, now.Add(-w.orderTTL), 100)
			if err != nil {
				w.logger.Error("failed to list stale orders: ", err)
				continue
			}
			for _, id := range ids {
				if err := w.cancelWithRetry(ctx, id); err != nil {
					w.logger.WithField("order_id", id.String()).Error("expiry cancel failed: ", err)
				}
			}
		}
	}
}

func (w *ExpiryWorker) cancelWithRetry(ctx context.Context, orderID uuid.UUID) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = w.orders.CancelOrder(ctx, orderID, "payment window expired")
		if err == nil {
			return nil
		}
		// A paid-in-the-meantime order shows up as an illegal transition;
		// that is a success from this worker's point of view.
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		if !errors.Is(err, domain.ErrTransient) {
			return err
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
