package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Role constants used when checking authorisation boundaries.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID   string
	Role string
}

// IsBuyer reports whether the actor carries the buyer role.
func (a Actor) IsBuyer() bool {
	return strings.EqualFold(strings.TrimSpace(a.Role), RoleBuyer)
}

// IsSeller reports whether the actor carries the seller role.
func (a Actor) IsSeller() bool {
	return strings.EqualFold(strings.TrimSpace(a.Role), RoleSeller)
}

// CartItem stores a single product line within a buyer's cart.
// Amounts are denominated in VND.
type CartItem struct {
	ProductID     string     `json:"productId"`
	Title         string     `json:"title"`
	UnitPrice     int64      `json:"unitPrice"`
	Quantity      int        `json:"quantity"`
	OriginalPrice *int64     `json:"originalPrice,omitempty"`
	StoreID       string     `json:"storeId"`
	StoreName     string     `json:"storeName"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	AddedAt       time.Time  `json:"addedAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// LineTotal returns the line contribution to the cart subtotal. Lines whose
// quantity or price was normalised to zero contribute nothing.
func (i CartItem) LineTotal() int64 {
	if i.Quantity <= 0 || i.UnitPrice <= 0 {
		return 0
	}
	return i.UnitPrice * int64(i.Quantity)
}

// Cart aggregates the mutable shopping state for a buyer.
type Cart struct {
	UserID    string            `json:"userId"`
	Items     []CartItem        `json:"items"`
	Delivery  DeliverySelection `json:"delivery"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Address represents a delivery address in the buyer's address book.
type Address struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Line      string `json:"line"`
	District  string `json:"district"`
	City      string `json:"city"`
	IsDefault bool   `json:"isDefault"`
	Notes     string `json:"notes,omitempty"`
}

// CustomerInfo is the contact block captured on the checkout form.
type CustomerInfo struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Line     string `json:"line"`
	District string `json:"district"`
	City     string `json:"city"`
	Notes    string `json:"notes,omitempty"`
}

// PromotionKind discriminates the promotion variants.
type PromotionKind string

const (
	// PromotionPercentage reduces the product subtotal by a percentage.
	PromotionPercentage PromotionKind = "percentage"
	// PromotionFixed reduces the product subtotal by a fixed amount.
	PromotionFixed PromotionKind = "fixed"
	// PromotionShipping waives part or all of the shipping fee.
	PromotionShipping PromotionKind = "shipping"
)

// PromotionClass groups promotion kinds into the two mutually exclusive slots.
type PromotionClass string

const (
	// PromotionClassProduct covers percentage and fixed promotions.
	PromotionClassProduct PromotionClass = "product"
	// PromotionClassShipping covers shipping waivers.
	PromotionClassShipping PromotionClass = "shipping"
)

// ErrInvalidPromotion is returned by promotion constructors on invalid parameters.
var ErrInvalidPromotion = errors.New("domain: invalid promotion")

// Promotion is an immutable promotion rule sourced from the catalog. Use the
// New*Promotion constructors; they keep kind-specific fields consistent so a
// shipping waiver can never carry a product value and vice versa.
type Promotion struct {
	Code  string        `json:"code"`
	Kind  PromotionKind `json:"kind"`
	Value int64         `json:"value,omitempty"`
	// MaxDiscount caps the product discount of a percentage promotion.
	// Zero means uncapped.
	MaxDiscount     int64         `json:"maxDiscount"`
	MinOrderValue   int64         `json:"minOrderValue"`
	ExpiresAt       time.Time     `json:"expiresAt"`
	NewCustomerOnly bool          `json:"newCustomerOnly,omitempty"`
}

// NewPercentagePromotion builds a percentage promotion capped at maxDiscount.
func NewPercentagePromotion(code string, percent, maxDiscount, minOrder int64, expiresAt time.Time, newCustomerOnly bool) (Promotion, error) {
	code = normalisePromotionCode(code)
	if code == "" {
		return Promotion{}, fmt.Errorf("%w: code is required", ErrInvalidPromotion)
	}
	if percent <= 0 || percent > 100 {
		return Promotion{}, fmt.Errorf("%w: percent must be within (0, 100]", ErrInvalidPromotion)
	}
	if maxDiscount < 0 || minOrder < 0 {
		return Promotion{}, fmt.Errorf("%w: amounts must be non-negative", ErrInvalidPromotion)
	}
	return Promotion{
		Code:            code,
		Kind:            PromotionPercentage,
		Value:           percent,
		MaxDiscount:     maxDiscount,
		MinOrderValue:   minOrder,
		ExpiresAt:       expiresAt.UTC(),
		NewCustomerOnly: newCustomerOnly,
	}, nil
}

// NewFixedPromotion builds a fixed-amount promotion capped at maxDiscount.
func NewFixedPromotion(code string, amount, maxDiscount, minOrder int64, expiresAt time.Time, newCustomerOnly bool) (Promotion, error) {
	code = normalisePromotionCode(code)
	if code == "" {
		return Promotion{}, fmt.Errorf("%w: code is required", ErrInvalidPromotion)
	}
	if amount <= 0 {
		return Promotion{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPromotion)
	}
	if maxDiscount < 0 || minOrder < 0 {
		return Promotion{}, fmt.Errorf("%w: amounts must be non-negative", ErrInvalidPromotion)
	}
	return Promotion{
		Code:            code,
		Kind:            PromotionFixed,
		Value:           amount,
		MaxDiscount:     maxDiscount,
		MinOrderValue:   minOrder,
		ExpiresAt:       expiresAt.UTC(),
		NewCustomerOnly: newCustomerOnly,
	}, nil
}

// NewShippingPromotion builds a shipping waiver capped at maxDiscount.
func NewShippingPromotion(code string, maxDiscount, minOrder int64, expiresAt time.Time, newCustomerOnly bool) (Promotion, error) {
	code = normalisePromotionCode(code)
	if code == "" {
		return Promotion{}, fmt.Errorf("%w: code is required", ErrInvalidPromotion)
	}
	if maxDiscount < 0 || minOrder < 0 {
		return Promotion{}, fmt.Errorf("%w: amounts must be non-negative", ErrInvalidPromotion)
	}
	return Promotion{
		Code:            code,
		Kind:            PromotionShipping,
		MaxDiscount:     maxDiscount,
		MinOrderValue:   minOrder,
		ExpiresAt:       expiresAt.UTC(),
		NewCustomerOnly: newCustomerOnly,
	}, nil
}

// Class returns the slot this promotion occupies.
func (p Promotion) Class() PromotionClass {
	if p.Kind == PromotionShipping {
		return PromotionClassShipping
	}
	return PromotionClassProduct
}

// IsZero reports whether the promotion is the empty value.
func (p Promotion) IsZero() bool {
	return p.Code == "" && p.Kind == ""
}

func normalisePromotionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AppliedPromotions holds at most one product promotion and at most one
// shipping promotion.
type AppliedPromotions struct {
	Product  *Promotion `json:"product,omitempty"`
	Shipping *Promotion `json:"shipping,omitempty"`
}

// Contains reports whether a promotion with the given code is in the set.
func (s AppliedPromotions) Contains(code string) bool {
	code = normalisePromotionCode(code)
	if s.Product != nil && s.Product.Code == code {
		return true
	}
	if s.Shipping != nil && s.Shipping.Code == code {
		return true
	}
	return false
}

// Slot returns the currently applied promotion for the class, if any.
func (s AppliedPromotions) Slot(class PromotionClass) *Promotion {
	switch class {
	case PromotionClassShipping:
		return s.Shipping
	default:
		return s.Product
	}
}

// DeliveryMethod enumerates the supported delivery methods.
type DeliveryMethod string

const (
	DeliveryStandard  DeliveryMethod = "standard"
	DeliveryExpress   DeliveryMethod = "express"
	DeliverySameDay   DeliveryMethod = "sameday"
	DeliveryScheduled DeliveryMethod = "scheduled"
	DeliveryEco       DeliveryMethod = "eco"
	DeliveryLocker    DeliveryMethod = "locker"
	DeliveryPickup    DeliveryMethod = "pickup"
)

// KnownDeliveryMethod reports whether the method is one of the supported values.
func KnownDeliveryMethod(m DeliveryMethod) bool {
	switch m {
	case DeliveryStandard, DeliveryExpress, DeliverySameDay, DeliveryScheduled, DeliveryEco, DeliveryLocker, DeliveryPickup:
		return true
	}
	return false
}

// DeliverySelection captures the chosen delivery method and its parameters.
// Required sub-fields depend on the method: scheduled needs ScheduledDate and
// TimeSlot, pickup needs PickupStoreID, locker needs LockerID.
type DeliverySelection struct {
	Method        DeliveryMethod `json:"method"`
	City          string         `json:"city"`
	ScheduledDate *time.Time     `json:"scheduledDate,omitempty"`
	TimeSlot      string         `json:"timeSlot,omitempty"`
	PickupStoreID string         `json:"pickupStoreId,omitempty"`
	LockerID      string         `json:"lockerId,omitempty"`
}

// PaymentMethod enumerates supported payment paths.
type PaymentMethod string

const (
	// PaymentCashOnDelivery settles when the carrier hands over the parcel.
	PaymentCashOnDelivery PaymentMethod = "cod"
	// PaymentBankTransfer settles against a static beneficiary account.
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	// PaymentCard is card / 3-D-Secure through the gateway redirect flow.
	PaymentCard PaymentMethod = "card"
	// PaymentEWallet is an e-wallet hand-off through the gateway redirect flow.
	PaymentEWallet PaymentMethod = "ewallet"
)

// Synchronous reports whether the method settles inline during submission.
func (m PaymentMethod) Synchronous() bool {
	return m == PaymentCashOnDelivery || m == PaymentBankTransfer
}

// KnownPaymentMethod reports whether the method is one of the supported values.
func KnownPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentCashOnDelivery, PaymentBankTransfer, PaymentCard, PaymentEWallet:
		return true
	}
	return false
}

// PricingBreakdown captures the derived money figures for a cart or order.
// Invariant: Total = max(0, Subtotal-ProductDiscount) + max(0, ShippingFee-ShippingDiscount).
type PricingBreakdown struct {
	ItemCount        int   `json:"itemCount"`
	Subtotal         int64 `json:"subtotal"`
	ProductDiscount  int64 `json:"productDiscount"`
	ShippingFee      int64 `json:"shippingFee"`
	ShippingDiscount int64 `json:"shippingDiscount"`
	Total            int64 `json:"total"`
}

// PendingOrder is the immutable snapshot persisted at checkout submission.
// It is consumed exactly once: on successful finalisation or explicit cancel.
type PendingOrder struct {
	Reference     string            `json:"reference"`
	UserID        string            `json:"userId"`
	Items         []CartItem        `json:"items"`
	Pricing       PricingBreakdown  `json:"pricing"`
	Delivery      DeliverySelection `json:"delivery"`
	Customer      CustomerInfo      `json:"customer"`
	PaymentMethod PaymentMethod     `json:"paymentMethod"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// OrderStatus enumerates the seller-side fulfillment lifecycle.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits processing.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the seller is preparing the order.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusReadyForDelivery indicates the order awaits the verification scan.
	OrderStatusReadyForDelivery OrderStatus = "ready_for_delivery"
	// OrderStatusShipping indicates the order was handed to the carrier.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted is terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status permits no further mutation.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderLineItem is a cart line frozen into an order, plus the scan flag.
type OrderLineItem struct {
	CartItem
	Verified bool `json:"verified"`
}

// Order is the durable post-confirmation record.
type Order struct {
	Reference        string            `json:"reference"`
	UserID           string            `json:"userId"`
	Status           OrderStatus       `json:"status"`
	Items            []OrderLineItem   `json:"items"`
	Pricing          PricingBreakdown  `json:"pricing"`
	Delivery         DeliverySelection `json:"delivery"`
	Customer         CustomerInfo      `json:"customer"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	PaymentReference string            `json:"paymentReference,omitempty"`
	CancelReason     string            `json:"cancelReason,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	ShippedAt        *time.Time        `json:"shippedAt,omitempty"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	CancelledAt      *time.Time        `json:"cancelledAt,omitempty"`
}

// AllItemsVerified reports whether every line passed the scan gate.
func (o Order) AllItemsVerified() bool {
	for _, item := range o.Items {
		if !item.Verified {
			return false
		}
	}
	return len(o.Items) > 0
}

// SanitizeAmount normalises an untrusted numeric amount. NaN, infinities and
// negative values collapse to 0 so pricing is always a defined number.
func SanitizeAmount(value float64) int64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	// math.MaxInt64 rounds to 2^63 as a float64, which does not fit int64.
	if value >= math.MaxInt64 {
		return 0
	}
	return int64(value)
}

// SanitizeQuantity normalises an untrusted quantity the same way.
func SanitizeQuantity(value float64) int {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	if value > math.MaxInt32 {
		return 0
	}
	return int(value)
}
