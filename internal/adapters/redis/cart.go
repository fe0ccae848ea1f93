package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/storefront-order-core/internal/domain"
)

// CartStore holds one cart snapshot per user as a JSON value with a
// sliding TTL. The snapshot is advisory: nothing here participates in
// the relational transactions, and checkout re-validates every line.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func cartKey(userID uuid.UUID) string {
	return "cart:" + userID.String()
}

// Get returns the user's cart, or an empty cart when none is stored.
func (s *CartStore) Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	val, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if err == redis.Nil {
		return domain.NewCart(userID), nil
	}
	if err != nil {
		return nil, err
	}
	var cart domain.Cart
	if err := json.Unmarshal(val, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Save writes the cart and resets the retention window, so an
// untouched cart expires while an active one does not.
func (s *CartStore) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cartKey(cart.UserID), data, s.ttl).Err()
}

func (s *CartStore) Delete(ctx context.Context, userID uuid.UUID) error {
	return s.client.Del(ctx, cartKey(userID)).Err()
}
