package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const TaxRate = 0.0

// CartItem is a prospective purchase. UnitPrice is the last price the
// user saw; checkout re-reads the catalog, so it is advisory only.
type CartItem struct {
	ItemType  ItemType  `json:"item_type"`
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	UnitPrice float64   `json:"unit_price"`
	Quantity  int       `json:"quantity"`
}

// Cart is the per-user snapshot held in Redis. It is not transactional
// with the relational store; every invariant it implies is re-checked at
// checkout.
type Cart struct {
	UserID    uuid.UUID  `json:"user_id"`
	Items     []CartItem `json:"items"`
	Subtotal  float64    `json:"subtotal"`
	Tax       float64    `json:"tax"`
	Total     float64    `json:"total"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart(userID uuid.UUID) *Cart {
	return &Cart{UserID: userID, UpdatedAt: time.Now().UTC()}
}

// Upsert adds the item or, when the (type,id) pair is already present,
// replaces its quantity and price snapshot.
func (c *Cart) Upsert(item CartItem) {
	for i := range c.Items {
		if c.Items[i].ItemType == item.ItemType && c.Items[i].ItemID == item.ItemID {
			c.Items[i] = item
			c.Recompute()
			return
		}
	}
	c.Items = append(c.Items, item)
	c.Recompute()
}

// Remove drops the line if present; removing an absent line is a no-op.
func (c *Cart) Remove(itemType ItemType, itemID uuid.UUID) {
	for i := range c.Items {
		if c.Items[i].ItemType == itemType && c.Items[i].ItemID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			break
		}
	}
	c.Recompute()
}

func (c *Cart) Find(itemType ItemType, itemID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ItemType == itemType && c.Items[i].ItemID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// Recompute refreshes the derived subtotal/tax/total after any mutation.
func (c *Cart) Recompute() {
	var subtotal float64
	for _, it := range c.Items {
		subtotal += it.UnitPrice * float64(it.Quantity)
	}
	c.Subtotal = round2(subtotal)
	c.Tax = round2(subtotal * TaxRate)
	c.Total = round2(c.Subtotal + c.Tax)
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) Empty() bool { return len(c.Items) == 0 }

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
