package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/storefront-order-core/internal/adapters/mongo"
	"github.com/robertarktes/storefront-order-core/internal/adapters/postgres"
	redisadapter "github.com/robertarktes/storefront-order-core/internal/adapters/redis"
	"github.com/robertarktes/storefront-order-core/internal/booking"
	"github.com/robertarktes/storefront-order-core/internal/cart"
	"github.com/robertarktes/storefront-order-core/internal/config"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/fulfillment"
	httphandler "github.com/robertarktes/storefront-order-core/internal/http"
	"github.com/robertarktes/storefront-order-core/internal/idempotency"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"github.com/robertarktes/storefront-order-core/internal/order"
	"github.com/robertarktes/storefront-order-core/internal/rateLimit"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// httpStack boots the real router against real backing stores, the same
// wiring cmd/api does.
type httpStack struct {
	server  *httptest.Server
	repo    *postgres.Repository
	catalog *mongoadapter.CatalogRepository
	orders  *order.Engine
}

func startHTTPStack(t *testing.T, ctx context.Context) *httpStack {
	t.Helper()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_USER": "store", "POSTGRES_PASSWORD": "store", "POSTGRES_DB": "store"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { mongoContainer.Terminate(ctx) })

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	mongoHost, err := mongoContainer.Host(ctx)
	require.NoError(t, err)
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	require.NoError(t, err)
	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", pgHost, pgPort.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoHost+":"+mongoPort.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { mongoClient.Disconnect(ctx) })
	mongoDB := mongoClient.Database("storefront")

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisHost + ":" + redisPort.Port()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{
		CartTTL:     7 * 24 * time.Hour,
		OrderTTL:    30 * time.Minute,
		LockTimeout: 3 * time.Second,
	}
	logger := observability.NewNopLogger()

	repo := postgres.NewRepository(pool, cfg.LockTimeout)
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)
	cache := redisadapter.NewCache(redisClient)
	cartStore := redisadapter.NewCartStore(redisClient, cfg.CartTTL)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	bookings := booking.NewManager(repo, logger)
	orders := order.NewEngine(repo, bookings, catalog, logger)
	fulfill := fulfillment.NewDispatcher(repo, bookings, logger)
	carts := cart.NewService(cartStore, catalog, logger)

	handlers := httphandler.NewHandlers(cfg, carts, orders, bookings, fulfill, idemp, catalog, audit, logger)
	server := httptest.NewServer(httphandler.SetupRouter(handlers, logger, rl, idemp))
	t.Cleanup(server.Close)

	return &httpStack{server: server, repo: repo, catalog: catalog, orders: orders}
}

func (s *httpStack) seedCourse(t *testing.T, ctx context.Context, price float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, s.catalog.UpsertItem(ctx, mongoadapter.ItemDoc{
		ID: id, ItemType: string(domain.ItemCourse), Name: "course", Price: price, Published: true,
	}))
	return id
}

func (s *httpStack) seedEvent(t *testing.T, ctx context.Context, capacity int, price float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, s.catalog.UpsertItem(ctx, mongoadapter.ItemDoc{
		ID: id, ItemType: string(domain.ItemEvent), Name: "event", Price: price, Published: true,
	}))
	require.NoError(t, s.repo.CreateEvent(ctx, domain.Event{ID: id, Capacity: capacity, AvailableSpots: capacity}))
	return id
}

func (s *httpStack) spots(t *testing.T, ctx context.Context, eventID uuid.UUID) int {
	t.Helper()
	ev, err := s.repo.GetEvent(ctx, eventID)
	require.NoError(t, err)
	return ev.AvailableSpots
}

func (s *httpStack) do(t *testing.T, method, path string, userID uuid.UUID, idempKey string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}
	if idempKey != "" {
		req.Header.Set("Idempotency-Key", idempKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHTTPCheckoutAndPaymentFlow(t *testing.T) {
	ctx := context.Background()
	stack := startHTTPStack(t, ctx)

	courseID := stack.seedCourse(t, ctx, 50)
	eventID := stack.seedEvent(t, ctx, 3, 25)
	userID := uuid.New()

	resp := stack.do(t, "POST", "/v1/cart/items", userID, uuid.NewString(), map[string]interface{}{
		"item_type": domain.ItemCourse, "item_id": courseID, "quantity": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = stack.do(t, "POST", "/v1/cart/items", userID, uuid.NewString(), map[string]interface{}{
		"item_type": domain.ItemEvent, "item_id": eventID, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = stack.do(t, "GET", "/v1/cart", userID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cartResp struct {
		Total float64           `json:"total"`
		Items []domain.CartItem `json:"items"`
	}
	decodeBody(t, resp, &cartResp)
	require.Len(t, cartResp.Items, 2)
	require.InDelta(t, 100, cartResp.Total, 0.001)

	checkoutKey := uuid.NewString()
	resp = stack.do(t, "POST", "/v1/checkout", userID, checkoutKey, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var checkoutResp struct {
		OrderID uuid.UUID `json:"order_id"`
		Status  string    `json:"status"`
		Total   float64   `json:"total"`
	}
	decodeBody(t, resp, &checkoutResp)
	require.Equal(t, string(domain.OrderPending), checkoutResp.Status)
	require.InDelta(t, 100, checkoutResp.Total, 0.001)
	require.Equal(t, 1, stack.spots(t, ctx, eventID))

	// Replaying the checkout key returns the stored response instead of
	// creating a second order.
	resp = stack.do(t, "POST", "/v1/checkout", userID, checkoutKey, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var replayResp struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	decodeBody(t, resp, &replayResp)
	require.Equal(t, checkoutResp.OrderID, replayResp.OrderID)
	require.Equal(t, 1, stack.spots(t, ctx, eventID))

	// Checkout consumed the cart.
	resp = stack.do(t, "GET", "/v1/cart", userID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &cartResp)
	require.Empty(t, cartResp.Items)

	orderPath := "/v1/orders/" + checkoutResp.OrderID.String()
	resp = stack.do(t, "POST", orderPath+"/payment", userID, uuid.NewString(), map[string]string{
		"payment_ref": "tx-" + checkoutResp.OrderID.String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payResp struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &payResp)
	require.Equal(t, string(domain.OrderPaymentPending), payResp.Status)

	callback := map[string]interface{}{
		"order_id":       checkoutResp.OrderID,
		"status":         "SUCCEEDED",
		"transaction_id": "tx-" + checkoutResp.OrderID.String(),
	}
	resp = stack.do(t, "POST", "/v1/payments/callback", uuid.Nil, "", callback)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = stack.do(t, "GET", orderPath, userID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orderResp struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &orderResp)
	require.Equal(t, string(domain.OrderCompleted), orderResp.Status)

	// The gateway redelivers until it sees a 2xx; a replay after the
	// flow committed must not disturb the order.
	resp = stack.do(t, "POST", "/v1/payments/callback", uuid.Nil, "", callback)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = stack.do(t, "GET", orderPath, userID, "", nil)
	decodeBody(t, resp, &orderResp)
	require.Equal(t, string(domain.OrderCompleted), orderResp.Status)

	resp = stack.do(t, "POST", orderPath+"/refund", userID, uuid.NewString(), map[string]string{
		"reason": "customer request",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = stack.do(t, "GET", orderPath, userID, "", nil)
	decodeBody(t, resp, &orderResp)
	require.Equal(t, string(domain.OrderRefunded), orderResp.Status)
	require.Equal(t, 3, stack.spots(t, ctx, eventID))
}

func TestHTTPPaymentCallbackResumesAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	stack := startHTTPStack(t, ctx)

	courseID := stack.seedCourse(t, ctx, 50)
	userID := uuid.New()

	resp := stack.do(t, "POST", "/v1/cart/items", userID, uuid.NewString(), map[string]interface{}{
		"item_type": domain.ItemCourse, "item_id": courseID, "quantity": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = stack.do(t, "POST", "/v1/checkout", userID, uuid.NewString(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var checkoutResp struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	decodeBody(t, resp, &checkoutResp)

	// A previous delivery recorded the payment and then the process
	// died before fulfillment committed, leaving the order in paid.
	_, err := stack.orders.UpdateStatus(ctx, checkoutResp.OrderID, domain.OrderPaymentPending)
	require.NoError(t, err)
	_, err = stack.orders.UpdateStatus(ctx, checkoutResp.OrderID, domain.OrderPaid)
	require.NoError(t, err)

	resp = stack.do(t, "POST", "/v1/payments/callback", uuid.Nil, "", map[string]interface{}{
		"order_id":       checkoutResp.OrderID,
		"status":         "SUCCEEDED",
		"transaction_id": "tx-retry",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = stack.do(t, "GET", "/v1/orders/"+checkoutResp.OrderID.String(), userID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orderResp struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &orderResp)
	require.Equal(t, string(domain.OrderCompleted), orderResp.Status)
}

func TestHTTPPaymentFailureCancelsOrder(t *testing.T) {
	ctx := context.Background()
	stack := startHTTPStack(t, ctx)

	eventID := stack.seedEvent(t, ctx, 2, 25)
	userID := uuid.New()

	resp := stack.do(t, "POST", "/v1/cart/items", userID, uuid.NewString(), map[string]interface{}{
		"item_type": domain.ItemEvent, "item_id": eventID, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = stack.do(t, "POST", "/v1/checkout", userID, uuid.NewString(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var checkoutResp struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	decodeBody(t, resp, &checkoutResp)
	require.Equal(t, 0, stack.spots(t, ctx, eventID))

	failure := map[string]interface{}{
		"order_id": checkoutResp.OrderID,
		"status":   "FAILED",
	}
	resp = stack.do(t, "POST", "/v1/payments/callback", uuid.Nil, "", failure)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = stack.do(t, "GET", "/v1/orders/"+checkoutResp.OrderID.String(), userID, "", nil)
	var orderResp struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &orderResp)
	require.Equal(t, string(domain.OrderCancelled), orderResp.Status)
	require.Equal(t, 2, stack.spots(t, ctx, eventID))

	// Redelivered failure callbacks stay a no-op once cancelled.
	resp = stack.do(t, "POST", "/v1/payments/callback", uuid.Nil, "", failure)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, stack.spots(t, ctx, eventID))
}
