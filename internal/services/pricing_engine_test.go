package services

import (
	"errors"
	"math"
	"testing"
	"time"

	domain "github.com/mekongcart/api/internal/domain"
)

var engineNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{
		Now: func() time.Time { return engineNow },
	})
	if err != nil {
		t.Fatalf("NewPricingEngine error: %v", err)
	}
	return engine
}

func cartItems(lines ...domain.CartItem) []domain.CartItem {
	return lines
}

func TestShippingFee_StandardBelowThreshold(t *testing.T) {
	engine := newTestEngine(t)

	fee := engine.ShippingFee(domain.DeliverySelection{Method: domain.DeliveryStandard}, 450_000, 30_000)
	if fee != 30_000 {
		t.Fatalf("expected fee 30000 below the free-shipping threshold, got %d", fee)
	}
}

func TestShippingFee_StandardAboveThreshold(t *testing.T) {
	engine := newTestEngine(t)

	fee := engine.ShippingFee(domain.DeliverySelection{Method: domain.DeliveryStandard}, 520_000, 30_000)
	if fee != 0 {
		t.Fatalf("expected free shipping above the threshold, got %d", fee)
	}
}

func TestShippingFee_Table(t *testing.T) {
	engine := newTestEngine(t)
	relaxed := engineNow.Add(4 * 24 * time.Hour)
	rush := engineNow.Add(24 * time.Hour)

	cases := []struct {
		name     string
		delivery domain.DeliverySelection
		subtotal int64
		want     int64
	}{
		{"express adds surcharge", domain.DeliverySelection{Method: domain.DeliveryExpress}, 100_000, 80_000},
		{"express keeps surcharge past threshold", domain.DeliverySelection{Method: domain.DeliveryExpress}, 600_000, 50_000},
		{"sameday major city", domain.DeliverySelection{Method: domain.DeliverySameDay, City: "Ha Noi"}, 100_000, 70_000},
		{"sameday major city alternate spelling", domain.DeliverySelection{Method: domain.DeliverySameDay, City: "  HCMC "}, 100_000, 70_000},
		{"sameday province", domain.DeliverySelection{Method: domain.DeliverySameDay, City: "Can Tho"}, 100_000, 90_000},
		{"scheduled relaxed", domain.DeliverySelection{Method: domain.DeliveryScheduled, ScheduledDate: &relaxed}, 100_000, 40_000},
		{"scheduled rush", domain.DeliverySelection{Method: domain.DeliveryScheduled, ScheduledDate: &rush}, 100_000, 55_000},
		{"eco rebate", domain.DeliverySelection{Method: domain.DeliveryEco}, 100_000, 20_000},
		{"locker rebate", domain.DeliverySelection{Method: domain.DeliveryLocker}, 100_000, 15_000},
		{"locker rebate floors at zero", domain.DeliverySelection{Method: domain.DeliveryLocker}, 600_000, 0},
		{"pickup always free", domain.DeliverySelection{Method: domain.DeliveryPickup}, 100_000, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.ShippingFee(tc.delivery, tc.subtotal, 30_000)
			if got != tc.want {
				t.Fatalf("fee mismatch: want %d, got %d", tc.want, got)
			}
		})
	}
}

func TestDiscount_PercentageUnderCap(t *testing.T) {
	engine := newTestEngine(t)

	welcome, err := domain.NewPercentagePromotion("WELCOME10", 10, 50_000, 100_000, engineNow.Add(time.Hour), false)
	if err != nil {
		t.Fatalf("NewPercentagePromotion error: %v", err)
	}

	product, shipping := engine.Discount(domain.AppliedPromotions{Product: &welcome}, 300_000, 0)
	if product != 30_000 {
		t.Fatalf("expected 10%% of 300000 under the cap, got %d", product)
	}
	if shipping != 0 {
		t.Fatalf("expected no shipping discount, got %d", shipping)
	}
}

func TestDiscount_PercentageHitsCap(t *testing.T) {
	engine := newTestEngine(t)

	welcome, err := domain.NewPercentagePromotion("WELCOME10", 10, 50_000, 100_000, engineNow.Add(time.Hour), false)
	if err != nil {
		t.Fatalf("NewPercentagePromotion error: %v", err)
	}

	product, _ := engine.Discount(domain.AppliedPromotions{Product: &welcome}, 900_000, 0)
	if product != 50_000 {
		t.Fatalf("expected the cap of 50000, got %d", product)
	}
}

func TestDiscount_PercentageZeroCapIsUncapped(t *testing.T) {
	engine := newTestEngine(t)

	welcome, err := domain.NewPercentagePromotion("WELCOME10", 10, 0, 100_000, engineNow.Add(time.Hour), false)
	if err != nil {
		t.Fatalf("NewPercentagePromotion error: %v", err)
	}

	product, _ := engine.Discount(domain.AppliedPromotions{Product: &welcome}, 9_000_000, 0)
	if product != 900_000 {
		t.Fatalf("expected the full 10%% without a cap, got %d", product)
	}
}

func TestDiscount_ShippingWaiverCappedByFee(t *testing.T) {
	engine := newTestEngine(t)

	freeship, err := domain.NewShippingPromotion("FREESHIP", 100_000, 0, engineNow.Add(time.Hour), false)
	if err != nil {
		t.Fatalf("NewShippingPromotion error: %v", err)
	}

	// Express on a 350k cart: 30k standard + 50k surcharge.
	fee := engine.ShippingFee(domain.DeliverySelection{Method: domain.DeliveryExpress}, 350_000, 30_000)
	if fee != 80_000 {
		t.Fatalf("expected express fee 80000, got %d", fee)
	}

	_, shipping := engine.Discount(domain.AppliedPromotions{Shipping: &freeship}, 350_000, fee)
	if shipping != 80_000 {
		t.Fatalf("expected waiver of the full 80000 fee, got %d", shipping)
	}

	_, none := engine.Discount(domain.AppliedPromotions{Shipping: &freeship}, 350_000, 0)
	if none != 0 {
		t.Fatalf("expected no waiver when the fee is already zero, got %d", none)
	}
}

func TestSubtotal_SkipsNormalisedLines(t *testing.T) {
	engine := newTestEngine(t)

	// A NaN quantity arrives as 0 after edge sanitisation.
	badQty := domain.SanitizeQuantity(math.NaN())
	if badQty != 0 {
		t.Fatalf("expected NaN quantity to normalise to 0, got %d", badQty)
	}

	items := cartItems(
		domain.CartItem{ProductID: "p1", UnitPrice: 120_000, Quantity: 2},
		domain.CartItem{ProductID: "p2", UnitPrice: 99_000, Quantity: badQty},
		domain.CartItem{ProductID: "p3", UnitPrice: domain.SanitizeAmount(math.Inf(1)), Quantity: 1},
	)

	if got := engine.Subtotal(items); got != 240_000 {
		t.Fatalf("expected invalid lines excluded from subtotal, got %d", got)
	}
	if got := engine.ItemCount(items); got != 2 {
		t.Fatalf("expected item count 2, got %d", got)
	}
}

func TestValidatePromotion(t *testing.T) {
	engine := newTestEngine(t)

	expired, _ := domain.NewFixedPromotion("OLD", 10_000, 0, 0, engineNow.Add(-time.Hour), false)
	minOrder, _ := domain.NewFixedPromotion("BIG", 10_000, 0, 500_000, engineNow.Add(time.Hour), false)
	newOnly, _ := domain.NewFixedPromotion("FIRST", 10_000, 0, 0, engineNow.Add(time.Hour), true)
	ok, _ := domain.NewFixedPromotion("ANY", 10_000, 0, 0, engineNow.Add(time.Hour), false)

	if err := engine.ValidatePromotion(expired, 100_000, false); !errors.Is(err, ErrPromotionExpired) {
		t.Fatalf("expected ErrPromotionExpired, got %v", err)
	}
	if err := engine.ValidatePromotion(minOrder, 100_000, false); !errors.Is(err, ErrPromotionMinimumOrder) {
		t.Fatalf("expected ErrPromotionMinimumOrder, got %v", err)
	}
	if err := engine.ValidatePromotion(newOnly, 100_000, false); !errors.Is(err, ErrPromotionIneligible) {
		t.Fatalf("expected ErrPromotionIneligible, got %v", err)
	}
	if err := engine.ValidatePromotion(newOnly, 100_000, true); err != nil {
		t.Fatalf("expected new customer to qualify, got %v", err)
	}
	if err := engine.ValidatePromotion(ok, 100_000, false); err != nil {
		t.Fatalf("expected promotion to validate, got %v", err)
	}
}

func TestApply_SlotRules(t *testing.T) {
	engine := newTestEngine(t)

	percent, _ := domain.NewPercentagePromotion("TEN", 10, 0, 0, engineNow.Add(time.Hour), false)
	fixed, _ := domain.NewFixedPromotion("FLAT", 20_000, 0, 0, engineNow.Add(time.Hour), false)
	freeship, _ := domain.NewShippingPromotion("FREESHIP", 0, 0, engineNow.Add(time.Hour), false)

	set, err := engine.Apply(domain.AppliedPromotions{}, percent)
	if err != nil {
		t.Fatalf("apply percent: %v", err)
	}
	set, err = engine.Apply(set, freeship)
	if err != nil {
		t.Fatalf("apply shipping alongside product: %v", err)
	}

	if _, err := engine.Apply(set, percent); !errors.Is(err, ErrPromotionAlreadyApplied) {
		t.Fatalf("expected ErrPromotionAlreadyApplied for same code, got %v", err)
	}
	if _, err := engine.Apply(set, fixed); !errors.Is(err, ErrPromotionDuplicateType) {
		t.Fatalf("expected ErrPromotionDuplicateType for second product promo, got %v", err)
	}
}

func TestQuote_TotalInvariant(t *testing.T) {
	engine := newTestEngine(t)

	welcome, _ := domain.NewPercentagePromotion("WELCOME10", 10, 50_000, 100_000, engineNow.Add(time.Hour), false)
	freeship, _ := domain.NewShippingPromotion("FREESHIP", 0, 0, engineNow.Add(time.Hour), false)

	cases := []struct {
		name     string
		items    []domain.CartItem
		applied  domain.AppliedPromotions
		delivery domain.DeliverySelection
	}{
		{"empty cart", nil, domain.AppliedPromotions{}, domain.DeliverySelection{Method: domain.DeliveryStandard}},
		{
			"plain standard",
			cartItems(domain.CartItem{ProductID: "p1", UnitPrice: 150_000, Quantity: 3}),
			domain.AppliedPromotions{},
			domain.DeliverySelection{Method: domain.DeliveryStandard},
		},
		{
			"both promotions",
			cartItems(domain.CartItem{ProductID: "p1", UnitPrice: 150_000, Quantity: 2}),
			domain.AppliedPromotions{Product: &welcome, Shipping: &freeship},
			domain.DeliverySelection{Method: domain.DeliveryExpress},
		},
		{
			"discount larger than subtotal",
			cartItems(domain.CartItem{ProductID: "p1", UnitPrice: 1_000, Quantity: 1}),
			domain.AppliedPromotions{Product: &welcome},
			domain.DeliverySelection{Method: domain.DeliveryPickup},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Quote(tc.items, tc.applied, tc.delivery, 30_000)
			if got.Total < 0 {
				t.Fatalf("total must never be negative, got %d", got.Total)
			}
			goods := got.Subtotal - got.ProductDiscount
			if goods < 0 {
				goods = 0
			}
			ship := got.ShippingFee - got.ShippingDiscount
			if ship < 0 {
				ship = 0
			}
			if got.Total != goods+ship {
				t.Fatalf("total invariant broken: %+v", got)
			}
		})
	}
}
