package kv

import (
	"context"
	"testing"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/repositories"
)

func TestPromotionRepositoryNormalisesCode(t *testing.T) {
	ctx := context.Background()
	repo := NewPromotionRepository(NewMemory())

	if _, err := repo.FindByCode(ctx, "NOPE"); !repositories.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	promo, err := domain.NewShippingPromotion("FREESHIP", 30_000, 200_000, repoNow.AddDate(1, 0, 0), false)
	if err != nil {
		t.Fatalf("NewShippingPromotion: %v", err)
	}
	if err := repo.Put(ctx, promo); err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, err := repo.FindByCode(ctx, "  freeship ")
	if err != nil {
		t.Fatalf("FindByCode with mixed case: %v", err)
	}
	if loaded.Code != "FREESHIP" || loaded.Kind != promo.Kind {
		t.Fatalf("unexpected promotion %#v", loaded)
	}
}

func TestPendingOrderRepositorySingleSnapshotPerBuyer(t *testing.T) {
	ctx := context.Background()
	repo := NewPendingOrderRepository(NewMemory())

	first := domain.PendingOrder{Reference: "ord_1", UserID: "user_1", CreatedAt: repoNow}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	second := domain.PendingOrder{Reference: "ord_2", UserID: "user_1", CreatedAt: repoNow}
	if err := repo.Insert(ctx, second); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict for second snapshot, got %v", err)
	}

	byUser, err := repo.FindByUser(ctx, "user_1")
	if err != nil {
		t.Fatalf("FindByUser: %v", err)
	}
	if byUser.Reference != "ord_1" {
		t.Fatalf("unexpected snapshot %#v", byUser)
	}

	if err := repo.Delete(ctx, "ord_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting a consumed snapshot again must stay silent.
	if err := repo.Delete(ctx, "ord_1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := repo.FindByUser(ctx, "user_1"); !repositories.IsNotFound(err) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}

	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("Insert after delete: %v", err)
	}
}

func TestOrderRepositoryInsertIsIdempotentGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(NewMemory())

	order := domain.Order{Reference: "ord_1", UserID: "user_1", Status: domain.OrderStatusPending, CreatedAt: repoNow}
	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, order); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate reference, got %v", err)
	}

	loaded, err := repo.FindByReference(ctx, "ord_1")
	if err != nil {
		t.Fatalf("FindByReference: %v", err)
	}
	if loaded.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected status %s", loaded.Status)
	}
}

func TestOrderRepositoryUpdateRequiresExisting(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(NewMemory())

	order := domain.Order{Reference: "ord_1", UserID: "user_1", Status: domain.OrderStatusPending}
	if err := repo.Update(ctx, order); !repositories.IsNotFound(err) {
		t.Fatalf("expected NotFound for unknown order, got %v", err)
	}

	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	order.Status = domain.OrderStatusProcessing
	if err := repo.Update(ctx, order); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := repo.FindByReference(ctx, "ord_1")
	if err != nil {
		t.Fatalf("FindByReference: %v", err)
	}
	if loaded.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected status %s", loaded.Status)
	}
}

func TestOrderRepositoryListByUserKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(NewMemory())

	for _, ref := range []string{"ord_1", "ord_2", "ord_3"} {
		if err := repo.Insert(ctx, domain.Order{Reference: ref, UserID: "user_1"}); err != nil {
			t.Fatalf("Insert %s: %v", ref, err)
		}
	}
	if err := repo.Insert(ctx, domain.Order{Reference: "ord_9", UserID: "user_2"}); err != nil {
		t.Fatalf("Insert other buyer: %v", err)
	}

	orders, err := repo.ListByUser(ctx, "user_1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	for i, ref := range []string{"ord_1", "ord_2", "ord_3"} {
		if orders[i].Reference != ref {
			t.Fatalf("unexpected order at %d: %s", i, orders[i].Reference)
		}
	}

	empty, err := repo.ListByUser(ctx, "user_3")
	if err != nil {
		t.Fatalf("ListByUser empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no orders, got %d", len(empty))
	}
}
