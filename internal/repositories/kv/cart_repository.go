package kv

import (
	"context"
	"strings"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/repositories"
)

// CartRepository persists carts as one JSON record per buyer.
type CartRepository struct {
	store repositories.KV
}

// NewCartRepository constructs a cart repository over the store.
func NewCartRepository(store repositories.KV) *CartRepository {
	return &CartRepository{store: store}
}

// Get loads the cart; a missing record yields a NotFound repository error.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	var cart domain.Cart
	ok, err := getJSON(ctx, r.store, "cart get", keyCart+userID, &cart)
	if err != nil {
		return domain.Cart{}, err
	}
	if !ok {
		return domain.Cart{}, repositories.NotFound("cart get", errMissingRecord)
	}
	return cart, nil
}

// Save writes the cart record.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return repositories.Conflict("cart save", errMissingRecord)
	}
	return setJSON(ctx, r.store, "cart save", keyCart+userID, cart)
}

// Clear removes the cart record entirely.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	return remove(ctx, r.store, "cart clear", keyCart+userID)
}

// AddressRepository persists the address book as one JSON record per buyer.
type AddressRepository struct {
	store repositories.KV
}

// NewAddressRepository constructs an address repository over the store.
func NewAddressRepository(store repositories.KV) *AddressRepository {
	return &AddressRepository{store: store}
}

// List returns the address book; an absent record is an empty book.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	var addresses []domain.Address
	if _, err := getJSON(ctx, r.store, "addresses list", keyAddressBook+userID, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

// Save replaces the address book.
func (r *AddressRepository) Save(ctx context.Context, userID string, addresses []domain.Address) error {
	return setJSON(ctx, r.store, "addresses save", keyAddressBook+userID, addresses)
}

// AppliedPromotionRepository persists the applied promotion set per buyer.
type AppliedPromotionRepository struct {
	store repositories.KV
}

// NewAppliedPromotionRepository constructs the repository over the store.
func NewAppliedPromotionRepository(store repositories.KV) *AppliedPromotionRepository {
	return &AppliedPromotionRepository{store: store}
}

// Get returns the applied set; an absent record is the empty set.
func (r *AppliedPromotionRepository) Get(ctx context.Context, userID string) (domain.AppliedPromotions, error) {
	var set domain.AppliedPromotions
	if _, err := getJSON(ctx, r.store, "cart promotions get", keyCartPromotions+userID, &set); err != nil {
		return domain.AppliedPromotions{}, err
	}
	return set, nil
}

// Save writes the applied set.
func (r *AppliedPromotionRepository) Save(ctx context.Context, userID string, set domain.AppliedPromotions) error {
	return setJSON(ctx, r.store, "cart promotions save", keyCartPromotions+userID, set)
}

// Clear removes the applied set.
func (r *AppliedPromotionRepository) Clear(ctx context.Context, userID string) error {
	return remove(ctx, r.store, "cart promotions clear", keyCartPromotions+userID)
}
