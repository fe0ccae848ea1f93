package domain

import (
	"context"

	"github.com/google/uuid"
)

// CatalogItem is the read-only view of an item's current listing. Prices
// here are live; orders freeze their own copy at checkout.
type CatalogItem struct {
	ItemType ItemType
	ID       uuid.UUID
	Name     string
	Price    float64
}

// Catalog is the external lookup boundary. The storefront catalog owns
// item metadata and pricing; this core only reads it.
type Catalog interface {
	GetItem(ctx context.Context, itemType ItemType, id uuid.UUID) (*CatalogItem, error)
}
