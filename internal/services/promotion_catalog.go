package services

import (
	"context"
	"errors"
	"strings"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/repositories"
)

var (
	// ErrPromotionInvalidCode signals the supplied promotion code is missing or malformed.
	ErrPromotionInvalidCode = errors.New("promotion catalog: invalid promotion code")
	// ErrPromotionNotFound indicates no promotion exists for the provided code.
	ErrPromotionNotFound = errors.New("promotion catalog: promotion not found")
	// ErrPromotionUnavailable indicates the catalog backend cannot serve the lookup.
	ErrPromotionUnavailable = errors.New("promotion catalog: unavailable")
)

// PromotionCatalogDeps wires the catalog repository.
type PromotionCatalogDeps struct {
	Repository repositories.PromotionRepository
}

type promotionCatalog struct {
	repo repositories.PromotionRepository
}

// NewPromotionCatalog constructs the read-only promotion directory.
func NewPromotionCatalog(deps PromotionCatalogDeps) (PromotionCatalog, error) {
	if deps.Repository == nil {
		return nil, errors.New("promotion catalog: repository is required")
	}
	return &promotionCatalog{repo: deps.Repository}, nil
}

// Lookup resolves a promotion code to its catalog rule.
func (c *promotionCatalog) Lookup(ctx context.Context, code string) (domain.Promotion, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Promotion{}, ErrPromotionInvalidCode
	}

	promo, err := c.repo.FindByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Promotion{}, ErrPromotionNotFound
		}
		return domain.Promotion{}, ErrPromotionUnavailable
	}
	return promo, nil
}
