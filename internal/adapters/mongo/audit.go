package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger records lifecycle events best-effort, after the relational
// commit. Callers log and swallow its errors.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogAction(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log: ", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogOrder(ctx context.Context, action string, o *domain.Order) error {
	return a.LogAction(ctx, action, o.UserID, map[string]interface{}{
		"order_id": o.ID,
		"status":   string(o.Status),
		"total":    o.TotalAmount,
		"items":    len(o.Items),
	})
}

func (a *AuditLogger) LogBooking(ctx context.Context, action string, b *domain.Booking) error {
	return a.LogAction(ctx, action, b.UserID, map[string]interface{}{
		"booking_id": b.ID,
		"event_id":   b.EventID,
		"status":     string(b.Status),
		"attendees":  b.AttendeeCount,
	})
}
