package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	redisadapter "github.com/robertarktes/storefront-order-core/internal/adapters/redis"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/observability"
)

// Service mediates cart mutations. Each add re-reads the catalog so the
// snapshot carries the price the user actually saw; the order engine
// still re-validates at checkout because the snapshot can go stale.
type Service struct {
	store   *redisadapter.CartStore
	catalog domain.Catalog
	logger  observability.Logger
}

func NewService(store *redisadapter.CartStore, catalog domain.Catalog, logger observability.Logger) *Service {
	return &Service{store: store, catalog: catalog, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return s.store.Get(ctx, userID)
}

// AddItem puts the item in the cart, replacing quantity and price
// snapshot if the line already exists.
func (s *Service) AddItem(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	if !itemType.Valid() {
		return nil, fmt.Errorf("%w: unknown item type %q", domain.ErrInvalidInput, itemType)
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be >= 1", domain.ErrInvalidInput)
	}

	item, err := s.catalog.GetItem(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}

	cart, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Upsert(domain.CartItem{
		ItemType:  itemType,
		ItemID:    itemID,
		Name:      item.Name,
		UnitPrice: item.Price,
		Quantity:  quantity,
	})
	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	observability.CartMutationsTotal.WithLabelValues("add").Inc()
	return cart, nil
}

func (s *Service) UpdateQuantity(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be >= 1", domain.ErrInvalidInput)
	}
	cart, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	line := cart.Find(itemType, itemID)
	if line == nil {
		return nil, fmt.Errorf("%w: item %s not in cart", domain.ErrNotFound, itemID)
	}
	line.Quantity = quantity
	cart.Recompute()
	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	observability.CartMutationsTotal.WithLabelValues("update").Inc()
	return cart, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Remove(itemType, itemID)
	if cart.Empty() {
		if err := s.store.Delete(ctx, userID); err != nil {
			return nil, err
		}
		observability.CartMutationsTotal.WithLabelValues("remove").Inc()
		return cart, nil
	}
	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	observability.CartMutationsTotal.WithLabelValues("remove").Inc()
	return cart, nil
}

func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.store.Delete(ctx, userID)
}
