package repositories

import (
	"context"

	domain "github.com/mekongcart/api/internal/domain"
)

// KV is the persistence layer contract used by every typed repository. Writes
// are atomic per key: a Set or Remove is either fully visible to a subsequent
// Get or not observed at all.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// RepositoryError wraps low-level persistence failures with the categorisation
// services rely on for error translation.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists the buyer's cart (line items plus delivery selection).
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Clear(ctx context.Context, userID string) error
}

// AddressRepository persists the buyer's address book as one record.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Save(ctx context.Context, userID string, addresses []domain.Address) error
}

// AppliedPromotionRepository persists the promotion set applied to a cart.
type AppliedPromotionRepository interface {
	Get(ctx context.Context, userID string) (domain.AppliedPromotions, error)
	Save(ctx context.Context, userID string, set domain.AppliedPromotions) error
	Clear(ctx context.Context, userID string) error
}

// PromotionRepository is the read-mostly promotion catalog directory.
type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	Put(ctx context.Context, promotion domain.Promotion) error
}

// PendingOrderRepository owns the checkout snapshot between submission and
// finalisation. At most one snapshot exists per buyer at a time.
type PendingOrderRepository interface {
	Insert(ctx context.Context, pending domain.PendingOrder) error
	FindByReference(ctx context.Context, reference string) (domain.PendingOrder, error)
	FindByUser(ctx context.Context, userID string) (domain.PendingOrder, error)
	Delete(ctx context.Context, reference string) error
}

// OrderRepository persists confirmed orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByReference(ctx context.Context, reference string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}
