package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
)

const (
	serializationFailureCode = "40001"
	lockNotAvailableCode     = "55P03"
	uniqueViolationCode      = "23505"
	checkViolationCode       = "23514"
)

// Constraint names from the schema. Violations of anything else (order
// PKs, the outbox index) surface raw instead of masquerading as a
// booking conflict.
const (
	duplicateBookingConstraint = "bookings_user_event_active"
	capacityCheckConstraint    = "events_available_within_capacity"
)

type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// WithTx runs fn inside a transaction with a bounded lock wait. Either
// every statement in fn commits or none does; a caller seeing an error
// can assume no partial state was left behind.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrTransient, err)
	}
	defer tx.Rollback(ctx)

	if r.lockTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()))
		if err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

// mapPgError folds driver error codes into the domain taxonomy: lock
// timeouts and serialization failures are transient (full rollback, safe
// retry), and the two named constraints map to their sentinels. Joining
// keeps the original chain intact, so a wrapper added above the repo
// (such as the checkout line-item context) survives the mapping.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == serializationFailureCode || pgErr.Code == lockNotAvailableCode:
		return errors.Join(domain.ErrTransient, err)
	case pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == duplicateBookingConstraint:
		return errors.Join(domain.ErrDuplicateBooking, err)
	case pgErr.Code == checkViolationCode && pgErr.ConstraintName == capacityCheckConstraint:
		return errors.Join(domain.ErrInsufficientCapacity, err)
	}
	return err
}
