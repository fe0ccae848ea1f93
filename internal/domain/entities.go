package domain

import (
	"time"

	"github.com/google/uuid"
)

// ItemType is the closed set of purchasable kinds. Fulfillment and refund
// both switch exhaustively on it, so a new kind cannot ship with only one
// half of the grant/revoke pair written.
type ItemType string

const (
	ItemCourse         ItemType = "course"
	ItemEvent          ItemType = "event"
	ItemDigitalProduct ItemType = "digital_product"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemCourse, ItemEvent, ItemDigitalProduct:
		return true
	}
	return false
}

// Event is the capacity-bearing resource. AvailableSpots is only ever
// written inside a transaction holding FOR UPDATE on the row, and the
// schema carries a check constraint keeping it within [0, capacity].
type Event struct {
	ID             uuid.UUID
	Capacity       int
	AvailableSpots int
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingAttended  BookingStatus = "attended"
)

// Booking rows are never deleted; cancellation is a status transition so
// the seat history survives refunds.
type Booking struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	EventID       uuid.UUID
	Status        BookingStatus
	AttendeeCount int
	TotalPrice    float64
	OrderID       *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Order struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Status      OrderStatus
	TotalAmount float64
	PaymentRef  *string
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem freezes the price at purchase time; catalog price changes
// after checkout do not touch it.
type OrderItem struct {
	OrderID   uuid.UUID
	ItemType  ItemType
	ItemID    uuid.UUID
	Quantity  int
	UnitPrice float64
}

type Enrollment struct {
	UserID   uuid.UUID
	CourseID uuid.UUID
	Status   string
	Progress int
}

type DownloadGrant struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	OrderID   uuid.UUID
}
