package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/mekongcart/api/internal/domain"
)

func TestPromotionCatalogLookup(t *testing.T) {
	ctx := context.Background()

	repo := newFakePromotionRepo()
	promo, err := domain.NewPercentagePromotion("WELCOME10", 10, 50_000, 100_000, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), true)
	if err != nil {
		t.Fatalf("NewPercentagePromotion: %v", err)
	}
	if err := repo.Put(ctx, promo); err != nil {
		t.Fatalf("Put: %v", err)
	}

	catalog, err := NewPromotionCatalog(PromotionCatalogDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewPromotionCatalog: %v", err)
	}

	found, err := catalog.Lookup(ctx, " welcome10 ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found.Code != "WELCOME10" {
		t.Fatalf("unexpected promotion %#v", found)
	}

	if _, err := catalog.Lookup(ctx, ""); !errors.Is(err, ErrPromotionInvalidCode) {
		t.Fatalf("expected ErrPromotionInvalidCode, got %v", err)
	}
	if _, err := catalog.Lookup(ctx, "MISSING"); !errors.Is(err, ErrPromotionNotFound) {
		t.Fatalf("expected ErrPromotionNotFound, got %v", err)
	}
}

func TestNewPromotionCatalogRequiresRepository(t *testing.T) {
	if _, err := NewPromotionCatalog(PromotionCatalogDeps{}); err == nil {
		t.Fatal("expected constructor error")
	}
}
