package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Entitlement tables. Every grant is insert-or-ignore and every revoke
// is delete-if-present with a guarded counter, so replaying a
// fulfillment or refund transaction cannot double-apply.

// GrantEnrollment inserts the enrollment if absent and reports whether a
// row was actually created; the counter only moves on a real insert.
func (r *Repository) GrantEnrollment(ctx context.Context, tx pgx.Tx, userID, courseID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO enrollments (user_id, course_id, status, progress)
		VALUES ($1, $2, 'enrolled', 0)
		ON CONFLICT (user_id, course_id) DO NOTHING
	`, userID, courseID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO course_stats (course_id, enrollment_count) VALUES ($1, 1)
		ON CONFLICT (course_id) DO UPDATE SET enrollment_count = course_stats.enrollment_count + 1
	`, courseID)
	return true, err
}

func (r *Repository) RevokeEnrollment(ctx context.Context, tx pgx.Tx, userID, courseID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM enrollments WHERE user_id = $1 AND course_id = $2
	`, userID, courseID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `
		UPDATE course_stats SET enrollment_count = GREATEST(enrollment_count - 1, 0)
		WHERE course_id = $1
	`, courseID)
	return true, err
}

// GrantDownload records the allowance once per (user, product, order).
func (r *Repository) GrantDownload(ctx context.Context, tx pgx.Tx, userID, productID, orderID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO download_grants (user_id, product_id, order_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id, order_id) DO NOTHING
	`, userID, productID, orderID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO product_stats (product_id, download_count) VALUES ($1, 1)
		ON CONFLICT (product_id) DO UPDATE SET download_count = product_stats.download_count + 1
	`, productID)
	return true, err
}

func (r *Repository) RevokeDownload(ctx context.Context, tx pgx.Tx, userID, productID, orderID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM download_grants WHERE user_id = $1 AND product_id = $2 AND order_id = $3
	`, userID, productID, orderID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `
		UPDATE product_stats SET download_count = GREATEST(download_count - 1, 0)
		WHERE product_id = $1
	`, productID)
	return true, err
}

func (r *Repository) CountEnrollments(ctx context.Context, courseID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(enrollment_count, 0) FROM course_stats WHERE course_id = $1
	`, courseID).Scan(&n)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return n, err
}

func (r *Repository) CountDownloads(ctx context.Context, productID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(download_count, 0) FROM product_stats WHERE product_id = $1
	`, productID).Scan(&n)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return n, err
}
