package kv

import (
	"context"
	"strings"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/repositories"
)

// PromotionRepository stores the promotion catalog, one record per code.
type PromotionRepository struct {
	store repositories.KV
}

// NewPromotionRepository constructs a promotion catalog repository.
func NewPromotionRepository(store repositories.KV) *PromotionRepository {
	return &PromotionRepository{store: store}
}

// FindByCode looks up a catalog promotion by its normalised code.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var promo domain.Promotion
	ok, err := getJSON(ctx, r.store, "promotion find", keyPromotion+code, &promo)
	if err != nil {
		return domain.Promotion{}, err
	}
	if !ok {
		return domain.Promotion{}, repositories.NotFound("promotion find", errMissingRecord)
	}
	return promo, nil
}

// Put writes a catalog promotion, keyed by code.
func (r *PromotionRepository) Put(ctx context.Context, promotion domain.Promotion) error {
	return setJSON(ctx, r.store, "promotion put", keyPromotion+promotion.Code, promotion)
}

// PendingOrderRepository persists checkout snapshots plus a per-user index so
// at most one snapshot can be outstanding per buyer.
type PendingOrderRepository struct {
	store repositories.KV
}

// NewPendingOrderRepository constructs the repository over the store.
func NewPendingOrderRepository(store repositories.KV) *PendingOrderRepository {
	return &PendingOrderRepository{store: store}
}

// Insert writes the snapshot and the user index. An existing snapshot for the
// same buyer is a conflict.
func (r *PendingOrderRepository) Insert(ctx context.Context, pending domain.PendingOrder) error {
	var existingRef string
	ok, err := getJSON(ctx, r.store, "pending order insert", keyPendingByUser+pending.UserID, &existingRef)
	if err != nil {
		return err
	}
	if ok && existingRef != "" {
		return repositories.Conflict("pending order insert", errMissingRecord)
	}
	if err := setJSON(ctx, r.store, "pending order insert", keyPendingOrder+pending.Reference, pending); err != nil {
		return err
	}
	return setJSON(ctx, r.store, "pending order insert", keyPendingByUser+pending.UserID, pending.Reference)
}

// FindByReference loads a snapshot by order reference.
func (r *PendingOrderRepository) FindByReference(ctx context.Context, reference string) (domain.PendingOrder, error) {
	var pending domain.PendingOrder
	ok, err := getJSON(ctx, r.store, "pending order find", keyPendingOrder+reference, &pending)
	if err != nil {
		return domain.PendingOrder{}, err
	}
	if !ok {
		return domain.PendingOrder{}, repositories.NotFound("pending order find", errMissingRecord)
	}
	return pending, nil
}

// FindByUser loads the outstanding snapshot for a buyer, if any.
func (r *PendingOrderRepository) FindByUser(ctx context.Context, userID string) (domain.PendingOrder, error) {
	var reference string
	ok, err := getJSON(ctx, r.store, "pending order find", keyPendingByUser+userID, &reference)
	if err != nil {
		return domain.PendingOrder{}, err
	}
	if !ok || reference == "" {
		return domain.PendingOrder{}, repositories.NotFound("pending order find", errMissingRecord)
	}
	return r.FindByReference(ctx, reference)
}

// Delete removes the snapshot and its user index. Deleting a snapshot that is
// already gone is not an error; finalisation relies on that.
func (r *PendingOrderRepository) Delete(ctx context.Context, reference string) error {
	var pending domain.PendingOrder
	ok, err := getJSON(ctx, r.store, "pending order delete", keyPendingOrder+reference, &pending)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := remove(ctx, r.store, "pending order delete", keyPendingOrder+reference); err != nil {
		return err
	}
	return remove(ctx, r.store, "pending order delete", keyPendingByUser+pending.UserID)
}

// OrderRepository persists confirmed orders plus a per-user reference index.
type OrderRepository struct {
	store repositories.KV
}

// NewOrderRepository constructs the repository over the store.
func NewOrderRepository(store repositories.KV) *OrderRepository {
	return &OrderRepository{store: store}
}

// Insert writes a new order; an existing record under the same reference is a
// conflict so duplicate finalisation can never clobber an order.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	var existing domain.Order
	ok, err := getJSON(ctx, r.store, "order insert", keyOrder+order.Reference, &existing)
	if err != nil {
		return err
	}
	if ok {
		return repositories.Conflict("order insert", errMissingRecord)
	}
	if err := setJSON(ctx, r.store, "order insert", keyOrder+order.Reference, order); err != nil {
		return err
	}

	var refs []string
	if _, err := getJSON(ctx, r.store, "order insert", keyOrdersByUser+order.UserID, &refs); err != nil {
		return err
	}
	refs = append(refs, order.Reference)
	return setJSON(ctx, r.store, "order insert", keyOrdersByUser+order.UserID, refs)
}

// Update overwrites an existing order record.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	var existing domain.Order
	ok, err := getJSON(ctx, r.store, "order update", keyOrder+order.Reference, &existing)
	if err != nil {
		return err
	}
	if !ok {
		return repositories.NotFound("order update", errMissingRecord)
	}
	return setJSON(ctx, r.store, "order update", keyOrder+order.Reference, order)
}

// FindByReference loads an order by reference.
func (r *OrderRepository) FindByReference(ctx context.Context, reference string) (domain.Order, error) {
	var order domain.Order
	ok, err := getJSON(ctx, r.store, "order find", keyOrder+reference, &order)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, repositories.NotFound("order find", errMissingRecord)
	}
	return order, nil
}

// ListByUser returns the buyer's orders in insertion order.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var refs []string
	if _, err := getJSON(ctx, r.store, "order list", keyOrdersByUser+userID, &refs); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(refs))
	for _, ref := range refs {
		order, err := r.FindByReference(ctx, ref)
		if err != nil {
			var repoErr repositories.RepositoryError
			if ok := asRepositoryError(err, &repoErr); ok && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
