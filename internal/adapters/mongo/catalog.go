package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository reads the storefront catalog collection. The catalog
// is owned by the admin side of the shop; this core treats it as a
// read-only price and metadata source.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("catalog_items"),
		logger: logger,
	}
}

type ItemDoc struct {
	ID        uuid.UUID `bson:"_id"`
	ItemType  string    `bson:"item_type"`
	Name      string    `bson:"name"`
	Price     float64   `bson:"price"`
	Published bool      `bson:"published"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// GetItem satisfies domain.Catalog. Unpublished items read as not found
// so a delisted product cannot be checked out.
func (c *CatalogRepository) GetItem(ctx context.Context, itemType domain.ItemType, id uuid.UUID) (*domain.CatalogItem, error) {
	var doc ItemDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id, "item_type": string(itemType)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, itemType, id)
	}
	if err != nil {
		c.logger.WithField("item_id", id.String()).Error("catalog lookup failed: ", err)
		return nil, err
	}
	if !doc.Published {
		return nil, fmt.Errorf("%w: %s %s is not published", domain.ErrNotFound, itemType, id)
	}
	return &domain.CatalogItem{
		ItemType: itemType,
		ID:       doc.ID,
		Name:     doc.Name,
		Price:    doc.Price,
	}, nil
}

// UpsertItem exists for catalog bootstrap in tests and tooling.
func (c *CatalogRepository) UpsertItem(ctx context.Context, doc ItemDoc) error {
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}
