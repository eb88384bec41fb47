package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/repositories"
)

// ErrNotAuthorized indicates the acting principal may not perform the operation.
var ErrNotAuthorized = errors.New("services: not authorized")

// PricingEngine computes cart and order money figures. All methods are pure;
// results are derived on every call and never cached.
type PricingEngine interface {
	Subtotal(items []domain.CartItem) int64
	ItemCount(items []domain.CartItem) int
	ShippingFee(delivery domain.DeliverySelection, subtotal, baseFee int64) int64
	ValidatePromotion(promo domain.Promotion, subtotal int64, isNewCustomer bool) error
	Apply(set domain.AppliedPromotions, promo domain.Promotion) (domain.AppliedPromotions, error)
	Discount(set domain.AppliedPromotions, subtotal, shippingFee int64) (product int64, shipping int64)
	Quote(items []domain.CartItem, applied domain.AppliedPromotions, delivery domain.DeliverySelection, baseFee int64) domain.PricingBreakdown
}

// PromotionCatalog is the read-only promotion directory.
type PromotionCatalog interface {
	Lookup(ctx context.Context, code string) (domain.Promotion, error)
}

// CartView is the derived cart state returned by every cart mutation.
type CartView struct {
	Items     []domain.CartItem
	Delivery  domain.DeliverySelection
	Addresses []domain.Address
	Applied   domain.AppliedPromotions
	Pricing   domain.PricingBreakdown
	UpdatedAt time.Time
}

// AddItemCommand carries a product line to merge into the cart.
type AddItemCommand struct {
	ProductID     string
	Title         string
	UnitPrice     int64
	Quantity      int
	OriginalPrice *int64
	StoreID       string
	StoreName     string
	ExpiresAt     *time.Time
}

// CartService owns the buyer's cart, address book and applied promotions.
type CartService interface {
	View(ctx context.Context, actor domain.Actor) (CartView, error)
	AddItem(ctx context.Context, actor domain.Actor, cmd AddItemCommand) (CartView, error)
	UpdateQuantity(ctx context.Context, actor domain.Actor, productID string, quantity int) (CartView, error)
	RemoveItem(ctx context.Context, actor domain.Actor, productID string) (CartView, error)
	Clear(ctx context.Context, actor domain.Actor) error
	SetDelivery(ctx context.Context, actor domain.Actor, delivery domain.DeliverySelection) (CartView, error)
	SaveAddress(ctx context.Context, actor domain.Actor, address domain.Address) ([]domain.Address, error)
	RemoveAddress(ctx context.Context, actor domain.Actor, addressID string) ([]domain.Address, error)
	SelectAddress(ctx context.Context, actor domain.Actor, addressID string) ([]domain.Address, error)
	ApplyPromotion(ctx context.Context, actor domain.Actor, code string, isNewCustomer bool) (CartView, error)
	RemovePromotion(ctx context.Context, actor domain.Actor, class domain.PromotionClass) (CartView, error)
}

// SubmitCheckoutCommand carries the checkout form.
type SubmitCheckoutCommand struct {
	Actor         domain.Actor
	Customer      domain.CustomerInfo
	Delivery      domain.DeliverySelection
	PaymentMethod domain.PaymentMethod
	IsNewCustomer bool
}

// CheckoutResult reports the outcome of a submission. Settled submissions
// carry the confirmed order reference; unsettled ones carry the gateway
// redirect and stay pending until the callback arrives.
type CheckoutResult struct {
	Reference    string
	Settled      bool
	RedirectURL  string
	Instructions map[string]string
	Pricing      domain.PricingBreakdown
}

// PaymentOutcome is the normalised gateway callback payload.
type PaymentOutcome struct {
	Succeeded        bool
	GatewayReference string
	FailureReason    string
}

// CheckoutService turns a cart into a confirmed order.
type CheckoutService interface {
	Submit(ctx context.Context, cmd SubmitCheckoutCommand) (CheckoutResult, error)
	Finalize(ctx context.Context, reference string, outcome PaymentOutcome) error
	CancelPending(ctx context.Context, actor domain.Actor, reference string) error
}

// FulfillmentService drives the seller-side order lifecycle.
type FulfillmentService interface {
	Get(ctx context.Context, actor domain.Actor, reference string) (domain.Order, error)
	ListByUser(ctx context.Context, actor domain.Actor) ([]domain.Order, error)
	Advance(ctx context.Context, actor domain.Actor, reference string) (domain.Order, error)
	VerifyItem(ctx context.Context, actor domain.Actor, reference, productID string) (domain.Order, error)
	Cancel(ctx context.Context, actor domain.Actor, reference, reason string) (domain.Order, error)
}

// Order event names published on status transitions.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventCancelled     = "order.cancelled"
)

// OrderEventMessage is the payload published for each order transition.
type OrderEventMessage struct {
	Event          string             `json:"event"`
	Reference      string             `json:"reference"`
	UserID         string             `json:"userId"`
	Status         domain.OrderStatus `json:"status"`
	PreviousStatus domain.OrderStatus `json:"previousStatus,omitempty"`
	OccurredAt     time.Time          `json:"occurredAt"`
}

// OrderEventPublisher delivers order events to interested consumers. Publish
// failures never block the originating transition.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
