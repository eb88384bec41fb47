package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/mekongcart/api/internal/domain"
)

var cartNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type cartFixture struct {
	service CartService
	carts   *fakeCartRepo
	applied *fakeAppliedRepo
	book    *fakeAddressRepo
	catalog *fakeCatalog
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()

	engine, err := NewPricingEngine(PricingEngineDeps{Now: func() time.Time { return cartNow }})
	if err != nil {
		t.Fatalf("NewPricingEngine error: %v", err)
	}

	welcome, _ := domain.NewPercentagePromotion("WELCOME10", 10, 50_000, 100_000, cartNow.Add(24*time.Hour), false)
	freeship, _ := domain.NewShippingPromotion("FREESHIP", 0, 0, cartNow.Add(24*time.Hour), false)

	carts := newFakeCartRepo()
	applied := newFakeAppliedRepo()
	book := newFakeAddressRepo()
	catalog := &fakeCatalog{promos: map[string]domain.Promotion{
		"WELCOME10": welcome,
		"FREESHIP":  freeship,
	}}

	seq := 0
	service, err := NewCartService(CartServiceDeps{
		Carts:           carts,
		Addresses:       book,
		Applied:         applied,
		Catalog:         catalog,
		Engine:          engine,
		BaseShippingFee: 30_000,
		Clock:           func() time.Time { return cartNow },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("id_%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewCartService error: %v", err)
	}

	return &cartFixture{service: service, carts: carts, applied: applied, book: book, catalog: catalog}
}

var buyer = domain.Actor{ID: "user_1", Role: domain.RoleBuyer}

func TestCartService_RejectsNonBuyers(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	seller := domain.Actor{ID: "staff_1", Role: domain.RoleSeller}
	if _, err := fx.service.AddItem(ctx, seller, AddItemCommand{ProductID: "p1", UnitPrice: 1000, Quantity: 1}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for seller, got %v", err)
	}
	if _, err := fx.service.View(ctx, domain.Actor{}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for anonymous, got %v", err)
	}
}

func TestCartService_AddItemMergesByProduct(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	if _, err := fx.service.AddItem(ctx, buyer, AddItemCommand{ProductID: "p1", Title: "Fish sauce", UnitPrice: 45_000, Quantity: 2}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	view, err := fx.service.AddItem(ctx, buyer, AddItemCommand{ProductID: "p1", Title: "Fish sauce", UnitPrice: 48_000, Quantity: 3})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(view.Items) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(view.Items))
	}
	if view.Items[0].Quantity != 5 {
		t.Fatalf("expected summed quantity 5, got %d", view.Items[0].Quantity)
	}
	if view.Items[0].UnitPrice != 48_000 {
		t.Fatalf("expected incoming price to win, got %d", view.Items[0].UnitPrice)
	}
	if view.Pricing.Subtotal != 240_000 {
		t.Fatalf("expected derived subtotal 240000, got %d", view.Pricing.Subtotal)
	}
}

func TestCartService_UpdateQuantityBelowOneRemoves(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	if _, err := fx.service.AddItem(ctx, buyer, AddItemCommand{ProductID: "p1", UnitPrice: 10_000, Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	view, err := fx.service.UpdateQuantity(ctx, buyer, "p1", 0)
	if err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected line removed, got %d lines", len(view.Items))
	}
}

func TestCartService_RemoveMissingItem(t *testing.T) {
	fx := newCartFixture(t)

	if _, err := fx.service.RemoveItem(context.Background(), buyer, "ghost"); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartService_AddressDefaultInvariant(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	first, err := fx.service.SaveAddress(ctx, buyer, domain.Address{FullName: "Nguyen Van A", Phone: "0900000001", City: "Ha Noi"})
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	if len(first) != 1 || !first[0].IsDefault {
		t.Fatalf("expected first address to become default, got %+v", first)
	}

	book, err := fx.service.SaveAddress(ctx, buyer, domain.Address{FullName: "Nguyen Van A", Phone: "0900000001", City: "Da Nang"})
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	book, err = fx.service.SelectAddress(ctx, buyer, book[1].ID)
	if err != nil {
		t.Fatalf("select second: %v", err)
	}

	defaults := 0
	for _, addr := range book {
		if addr.IsDefault {
			defaults++
			if addr.City != "Da Nang" {
				t.Fatalf("expected the selected address to be default, got %+v", addr)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default, got %d", defaults)
	}

	book, err = fx.service.RemoveAddress(ctx, buyer, book[1].ID)
	if err != nil {
		t.Fatalf("remove default: %v", err)
	}
	if len(book) != 1 || !book[0].IsDefault {
		t.Fatalf("expected remaining address promoted to default, got %+v", book)
	}
}

func TestCartService_ApplyPromotionDuplicateClass(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	if _, err := fx.service.AddItem(ctx, buyer, AddItemCommand{ProductID: "p1", UnitPrice: 150_000, Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}

	view, err := fx.service.ApplyPromotion(ctx, buyer, "welcome10", false)
	if err != nil {
		t.Fatalf("apply WELCOME10: %v", err)
	}
	if view.Pricing.ProductDiscount != 30_000 {
		t.Fatalf("expected 10%% discount of 30000, got %d", view.Pricing.ProductDiscount)
	}

	if _, err := fx.service.ApplyPromotion(ctx, buyer, "WELCOME10", false); !errors.Is(err, ErrPromotionAlreadyApplied) {
		t.Fatalf("expected ErrPromotionAlreadyApplied, got %v", err)
	}
	if _, err := fx.service.ApplyPromotion(ctx, buyer, "NOPE", false); !errors.Is(err, ErrPromotionNotFound) {
		t.Fatalf("expected ErrPromotionNotFound, got %v", err)
	}

	view, err = fx.service.ApplyPromotion(ctx, buyer, "FREESHIP", false)
	if err != nil {
		t.Fatalf("apply FREESHIP: %v", err)
	}
	if view.Applied.Shipping == nil || view.Applied.Product == nil {
		t.Fatalf("expected both slots filled, got %+v", view.Applied)
	}

	view, err = fx.service.RemovePromotion(ctx, buyer, domain.PromotionClassProduct)
	if err != nil {
		t.Fatalf("remove product promo: %v", err)
	}
	if view.Applied.Product != nil {
		t.Fatalf("expected product slot cleared, got %+v", view.Applied)
	}
}

func TestCartService_SetDeliveryChangesTotals(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	if _, err := fx.service.AddItem(ctx, buyer, AddItemCommand{ProductID: "p1", UnitPrice: 100_000, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}

	view, err := fx.service.SetDelivery(ctx, buyer, domain.DeliverySelection{Method: domain.DeliveryExpress})
	if err != nil {
		t.Fatalf("set express: %v", err)
	}
	if view.Pricing.ShippingFee != 80_000 {
		t.Fatalf("expected express fee 80000, got %d", view.Pricing.ShippingFee)
	}

	if _, err := fx.service.SetDelivery(ctx, buyer, domain.DeliverySelection{Method: "teleport"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput for unknown method, got %v", err)
	}
}

func TestCartService_ClearDropsItemsAndPromotions(t *testing.T) {
	fx := newCartFixture(t)
	ctx := context.Background()

	if _, err := fx.service.AddItem(ctx, buyer, AddItemCommand{ProductID: "p1", UnitPrice: 150_000, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := fx.service.ApplyPromotion(ctx, buyer, "WELCOME10", false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := fx.service.Clear(ctx, buyer); err != nil {
		t.Fatalf("clear: %v", err)
	}

	view, err := fx.service.View(ctx, buyer)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(view.Items) != 0 || view.Applied.Product != nil {
		t.Fatalf("expected empty cart and promotions, got %+v", view)
	}
}
