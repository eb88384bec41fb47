package services

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/mekongcart/api/internal/domain"
)

var (
	// ErrPromotionExpired indicates the promotion's expiry passed.
	ErrPromotionExpired = errors.New("pricing engine: promotion expired")
	// ErrPromotionMinimumOrder indicates the subtotal is below the promotion's minimum.
	ErrPromotionMinimumOrder = errors.New("pricing engine: minimum order value not reached")
	// ErrPromotionIneligible indicates the customer does not qualify for the promotion.
	ErrPromotionIneligible = errors.New("pricing engine: customer not eligible")
	// ErrPromotionAlreadyApplied indicates the same code is already in the applied set.
	ErrPromotionAlreadyApplied = errors.New("pricing engine: promotion already applied")
	// ErrPromotionDuplicateType indicates another promotion of the same class is applied.
	ErrPromotionDuplicateType = errors.New("pricing engine: promotion of this type already applied")
)

// PricingEngineDeps wires the clock for the engine.
type PricingEngineDeps struct {
	Now func() time.Time
}

type pricingEngine struct {
	now func() time.Time
}

// NewPricingEngine constructs the pricing engine.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &pricingEngine{
		now: func() time.Time {
			return now().UTC()
		},
	}, nil
}

// Subtotal sums line totals. Lines whose quantity or price was normalised to
// zero contribute nothing instead of poisoning the total.
func (e *pricingEngine) Subtotal(items []domain.CartItem) int64 {
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	return subtotal
}

// ItemCount sums the quantities of the lines that contribute to the subtotal.
func (e *pricingEngine) ItemCount(items []domain.CartItem) int {
	count := 0
	for _, item := range items {
		if item.LineTotal() == 0 {
			continue
		}
		count += item.Quantity
	}
	return count
}

// ShippingFee derives the fee for the delivery selection. The standard
// component is waived once the subtotal reaches the free-shipping threshold;
// surcharges apply on top of it and rebates are floored at zero.
func (e *pricingEngine) ShippingFee(delivery domain.DeliverySelection, subtotal, baseFee int64) int64 {
	if baseFee < 0 {
		baseFee = 0
	}

	standard := baseFee
	if subtotal >= domain.FreeShippingThreshold {
		standard = 0
	}

	var fee int64
	switch delivery.Method {
	case domain.DeliveryPickup:
		return 0
	case domain.DeliveryExpress:
		fee = standard + domain.ExpressSurcharge
	case domain.DeliverySameDay:
		if domain.MajorCity(delivery.City) {
			fee = standard + domain.SameDayMajorCity
		} else {
			fee = standard + domain.SameDayProvince
		}
	case domain.DeliveryScheduled:
		fee = standard + e.scheduledSurcharge(delivery.ScheduledDate)
	case domain.DeliveryEco:
		fee = standard - domain.EcoRebate
	case domain.DeliveryLocker:
		fee = standard - domain.LockerRebate
	default:
		fee = standard
	}

	if fee < 0 {
		fee = 0
	}
	return fee
}

// scheduledSurcharge picks the relaxed rate when the slot is at least
// ScheduledLeadDays away, the rush rate otherwise. A missing date counts as
// rush; checkout validation rejects it before an order is placed.
func (e *pricingEngine) scheduledSurcharge(scheduledDate *time.Time) int64 {
	if scheduledDate == nil {
		return domain.ScheduledRush
	}
	lead := scheduledDate.UTC().Sub(e.now())
	if lead >= time.Duration(domain.ScheduledLeadDays)*24*time.Hour {
		return domain.ScheduledRelaxed
	}
	return domain.ScheduledRush
}

// ValidatePromotion checks a catalog promotion against the current cart state.
func (e *pricingEngine) ValidatePromotion(promo domain.Promotion, subtotal int64, isNewCustomer bool) error {
	if !promo.ExpiresAt.IsZero() && e.now().After(promo.ExpiresAt) {
		return fmt.Errorf("%w: %s", ErrPromotionExpired, promo.Code)
	}
	if subtotal < promo.MinOrderValue {
		return fmt.Errorf("%w: %s requires subtotal of %d", ErrPromotionMinimumOrder, promo.Code, promo.MinOrderValue)
	}
	if promo.NewCustomerOnly && !isNewCustomer {
		return fmt.Errorf("%w: %s is for new customers", ErrPromotionIneligible, promo.Code)
	}
	return nil
}

// Apply slots the promotion into the set. The same code can be applied once
// and each class holds at most one promotion.
func (e *pricingEngine) Apply(set domain.AppliedPromotions, promo domain.Promotion) (domain.AppliedPromotions, error) {
	if set.Contains(promo.Code) {
		return set, fmt.Errorf("%w: %s", ErrPromotionAlreadyApplied, promo.Code)
	}
	class := promo.Class()
	if set.Slot(class) != nil {
		return set, fmt.Errorf("%w: %s slot occupied", ErrPromotionDuplicateType, class)
	}

	applied := promo
	switch class {
	case domain.PromotionClassShipping:
		set.Shipping = &applied
	default:
		set.Product = &applied
	}
	return set, nil
}

// Discount derives the product and shipping discounts for the applied set.
// Product discounts never exceed the subtotal, shipping discounts never exceed
// the fee, and a zero MaxDiscount means uncapped.
func (e *pricingEngine) Discount(set domain.AppliedPromotions, subtotal, shippingFee int64) (int64, int64) {
	var product int64
	if promo := set.Product; promo != nil {
		switch promo.Kind {
		case domain.PromotionPercentage:
			product = subtotal * promo.Value / 100
		case domain.PromotionFixed:
			product = promo.Value
		}
		if promo.MaxDiscount > 0 && product > promo.MaxDiscount {
			product = promo.MaxDiscount
		}
		if product > subtotal {
			product = subtotal
		}
		if product < 0 {
			product = 0
		}
	}

	var shipping int64
	if promo := set.Shipping; promo != nil && shippingFee > 0 {
		shipping = shippingFee
		if promo.MaxDiscount > 0 && shipping > promo.MaxDiscount {
			shipping = promo.MaxDiscount
		}
	}

	return product, shipping
}

// Quote composes the per-concern calculations into a full breakdown. It is
// recomputed on every call so the figures always reflect the current cart.
func (e *pricingEngine) Quote(items []domain.CartItem, applied domain.AppliedPromotions, delivery domain.DeliverySelection, baseFee int64) domain.PricingBreakdown {
	subtotal := e.Subtotal(items)
	fee := e.ShippingFee(delivery, subtotal, baseFee)
	productDiscount, shippingDiscount := e.Discount(applied, subtotal, fee)

	goods := subtotal - productDiscount
	if goods < 0 {
		goods = 0
	}
	ship := fee - shippingDiscount
	if ship < 0 {
		ship = 0
	}

	return domain.PricingBreakdown{
		ItemCount:        e.ItemCount(items),
		Subtotal:         subtotal,
		ProductDiscount:  productDiscount,
		ShippingFee:      fee,
		ShippingDiscount: shippingDiscount,
		Total:            goods + ship,
	}
}
