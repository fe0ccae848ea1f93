package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/storefront-order-core/internal/adapters/postgres"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
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
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	return pool
}

func TestCapacityLedger_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := postgres.NewRepository(pool, 3*time.Second)

	eventID := uuid.New()
	require.NoError(t, repo.CreateEvent(ctx, domain.Event{ID: eventID, Capacity: 5, AvailableSpots: 5}))

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		ev, err := repo.LockEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		return repo.ReserveSpots(ctx, tx, ev, 3)
	})
	require.NoError(t, err)

	ev, err := repo.GetEvent(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, 2, ev.AvailableSpots)

	// Asking for more than remains is a capacity conflict and leaves
	// the ledger untouched.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		ev, err := repo.LockEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		return repo.ReserveSpots(ctx, tx, ev, 3)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientCapacity)

	ev, err = repo.GetEvent(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, 2, ev.AvailableSpots)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.ReleaseSpots(ctx, tx, eventID, 3)
	})
	require.NoError(t, err)

	ev, err = repo.GetEvent(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, 5, ev.AvailableSpots)
}

func TestCapacityLedger_ReleaseBeyondCapacityRejected(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := postgres.NewRepository(pool, 3*time.Second)

	eventID := uuid.New()
	require.NoError(t, repo.CreateEvent(ctx, domain.Event{ID: eventID, Capacity: 2, AvailableSpots: 2}))

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.ReleaseSpots(ctx, tx, eventID, 1)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientCapacity)
}

func TestBookings_DuplicateRejectedByIndex(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := postgres.NewRepository(pool, 3*time.Second)

	eventID := uuid.New()
	userID := uuid.New()
	require.NoError(t, repo.CreateEvent(ctx, domain.Event{ID: eventID, Capacity: 10, AvailableSpots: 10}))

	insert := func() error {
		return repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertBooking(ctx, tx, domain.Booking{
				ID:            uuid.New(),
				UserID:        userID,
				EventID:       eventID,
				Status:        domain.BookingPending,
				AttendeeCount: 1,
			})
		})
	}
	require.NoError(t, insert())
	require.ErrorIs(t, insert(), domain.ErrDuplicateBooking)

	// A cancelled booking frees the slot for a new one.
	bookings, err := repo.ListBookingsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.UpdateBookingStatus(ctx, tx, bookings[0].ID, domain.BookingCancelled)
	})
	require.NoError(t, err)
	require.NoError(t, insert())
}

func TestOrderPKCollisionIsNotABookingConflict(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := postgres.NewRepository(pool, 3*time.Second)

	o := domain.Order{ID: uuid.New(), UserID: uuid.New(), Status: domain.OrderPending, TotalAmount: 10}
	insert := func() error {
		return repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertOrder(ctx, tx, o)
		})
	}
	require.NoError(t, insert())

	// Only the bookings partial index maps to the duplicate-booking
	// sentinel; other unique violations surface raw.
	err := insert()
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrDuplicateBooking)
}

func TestPaymentRef_Idempotent(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := postgres.NewRepository(pool, 3*time.Second)

	o := domain.Order{ID: uuid.New(), UserID: uuid.New(), Status: domain.OrderPending, TotalAmount: 10}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOrder(ctx, tx, o)
	})
	require.NoError(t, err)

	attach := func(ref string) error {
		return repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.SetPaymentRef(ctx, tx, o.ID, ref)
		})
	}
	require.NoError(t, attach("tx-123"))
	require.NoError(t, attach("tx-123"))
	require.ErrorIs(t, attach("tx-456"), domain.ErrPaymentRefMismatch)
}
