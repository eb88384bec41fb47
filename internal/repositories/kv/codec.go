package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mekongcart/api/internal/repositories"
)

// Key prefixes for the logical records the engine persists.
const (
	keyCart           = "carts/"
	keyAddressBook    = "addresses/"
	keyCartPromotions = "cart_promotions/"
	keyPromotion      = "promotions/"
	keyPendingOrder   = "pending_orders/"
	keyPendingByUser  = "pending_order_refs/"
	keyOrder          = "orders/"
	keyOrdersByUser   = "order_refs/"
)

var errMissingRecord = errors.New("record not found")

func getJSON[T any](ctx context.Context, store repositories.KV, op, key string, out *T) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, translate(op, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, repositories.Unavailable(op, fmt.Errorf("decode %s: %w", key, err))
	}
	return true, nil
}

func setJSON(ctx context.Context, store repositories.KV, op, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return repositories.Unavailable(op, fmt.Errorf("encode %s: %w", key, err))
	}
	if err := store.Set(ctx, key, raw); err != nil {
		return translate(op, err)
	}
	return nil
}

func remove(ctx context.Context, store repositories.KV, op, key string) error {
	if err := store.Remove(ctx, key); err != nil {
		return translate(op, err)
	}
	return nil
}

// translate keeps already-categorised repository errors intact and treats
// anything else from the backend as unavailable.
func translate(op string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return repositories.Unavailable(op, err)
}

func asRepositoryError(err error, target *repositories.RepositoryError) bool {
	return errors.As(err, target)
}
