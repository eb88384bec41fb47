package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUnavailable indicates the cart backend cannot fulfil the request.
	ErrCartUnavailable = errors.New("cart service: unavailable")
	// ErrCartItemNotFound indicates the referenced product line is not in the cart.
	ErrCartItemNotFound = errors.New("cart service: item not found")
	// ErrAddressNotFound indicates the referenced address is not in the book.
	ErrAddressNotFound = errors.New("cart service: address not found")
)

const defaultBaseShippingFee int64 = 30_000

// CartServiceDeps wires the repositories and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Addresses       repositories.AddressRepository
	Applied         repositories.AppliedPromotionRepository
	Catalog         PromotionCatalog
	Engine          PricingEngine
	BaseShippingFee int64
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	carts     repositories.CartRepository
	addresses repositories.AddressRepository
	applied   repositories.AppliedPromotionRepository
	catalog   PromotionCatalog
	engine    PricingEngine
	baseFee   int64
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("cart service: address repository is required")
	}
	if deps.Applied == nil {
		return nil, errors.New("cart service: applied promotion repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: promotion catalog is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}

	baseFee := deps.BaseShippingFee
	if baseFee <= 0 {
		baseFee = defaultBaseShippingFee
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		carts:     deps.Carts,
		addresses: deps.Addresses,
		applied:   deps.Applied,
		catalog:   deps.Catalog,
		engine:    deps.Engine,
		baseFee:   baseFee,
		now:       func() time.Time { return now().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// View loads the cart and derives the current totals.
func (s *cartService) View(ctx context.Context, actor domain.Actor) (CartView, error) {
	if err := requireBuyer(actor); err != nil {
		return CartView{}, err
	}
	cart, err := s.loadCart(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}
	return s.buildView(ctx, cart)
}

// AddItem merges a product line into the cart. An existing line for the same
// product accumulates the quantity and takes the incoming price fields.
func (s *cartService) AddItem(ctx context.Context, actor domain.Actor, cmd AddItemCommand) (CartView, error) {
	if err := requireBuyer(actor); err != nil {
		return CartView{}, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID != productID {
			continue
		}
		cart.Items[i].Quantity += cmd.Quantity
		cart.Items[i].UnitPrice = cmd.UnitPrice
		cart.Items[i].OriginalPrice = cmd.OriginalPrice
		cart.Items[i].ExpiresAt = cmd.ExpiresAt
		cart.Items[i].UpdatedAt = &now
		merged = true
		break
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:     productID,
			Title:         strings.TrimSpace(cmd.Title),
			UnitPrice:     cmd.UnitPrice,
			Quantity:      cmd.Quantity,
			OriginalPrice: cmd.OriginalPrice,
			StoreID:       strings.TrimSpace(cmd.StoreID),
			StoreName:     strings.TrimSpace(cmd.StoreName),
			ExpiresAt:     cmd.ExpiresAt,
			AddedAt:       now,
		})
	}

	return s.saveAndView(ctx, cart)
}

// UpdateQuantity sets the quantity of an existing line. A quantity below one
// removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, actor domain.Actor, productID string, quantity int) (CartView, error) {
	if err := requireBuyer(actor); err != nil {
		return CartView{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if quantity < 1 {
		return s.RemoveItem(ctx, actor, productID)
	}

	cart, err := s.loadCart(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	for i := range cart.Items {
		if cart.Items[i].ProductID != productID {
			continue
		}
		cart.Items[i].Quantity = quantity
		cart.Items[i].UpdatedAt = &now
		return s.saveAndView(ctx, cart)
	}
	return CartView{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
}

// RemoveItem drops a product line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, actor domain.Actor, productID string) (CartView, error) {
	if err := requireBuyer(actor); err != nil {
		return CartView{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}

	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
	}
	cart.Items = kept

	return s.saveAndView(ctx, cart)
}

// Clear drops every line and the applied promotions.
func (s *cartService) Clear(ctx context.Context, actor domain.Actor) error {
	if err := requireBuyer(actor); err != nil {
		return err
	}
	if err := s.carts.Clear(ctx, actor.ID); err != nil && !isRepoNotFound(err) {
		return s.translateRepoError(err)
	}
	if err := s.applied.Clear(ctx, actor.ID); err != nil && !isRepoNotFound(err) {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"userId": actor.ID})
	return nil
}

// SetDelivery records the delivery selection so totals track the chosen method.
func (s *cartService) SetDelivery(ctx context.Context, actor domain.Actor, delivery domain.DeliverySelection) (CartView, error) {
	if err := requireBuyer(actor); err != nil {
		return CartView{}, err
	}
	if !domain.KnownDeliveryMethod(delivery.Method) {
		return CartView{}, fmt.Errorf("%w: unknown delivery method %q", ErrCartInvalidInput, delivery.Method)
	}

	cart, err := s.loadCart(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}
	cart.Delivery = delivery

	return s.saveAndView(ctx, cart)
}

// SaveAddress inserts or updates an address, keeping at most one default.
func (s *cartService) SaveAddress(ctx context.Context, actor domain.Actor, address domain.Address) ([]domain.Address, error) {
	if err := requireBuyer(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(address.FullName) == "" || strings.TrimSpace(address.Phone) == "" {
		return nil, fmt.Errorf("%w: full name and phone are required", ErrCartInvalidInput)
	}

	book, err := s.addresses.List(ctx, actor.ID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	if strings.TrimSpace(address.ID) == "" {
		address.ID = s.newID()
		if len(book) == 0 {
			address.IsDefault = true
		}
		book = append(book, address)
	} else {
		found := false
		for i := range book {
			if book[i].ID == address.ID {
				book[i] = address
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrAddressNotFound, address.ID)
		}
	}

	if address.IsDefault {
		clearOtherDefaults(book, address.ID)
	}
	ensureSingleDefault(book)

	if err := s.addresses.Save(ctx, actor.ID, book); err != nil {
		return nil, s.translateRepoError(err)
	}
	return book, nil
}

// RemoveAddress drops an address. When the default is removed the first
// remaining address becomes the default.
func (s *cartService) RemoveAddress(ctx context.Context, actor domain.Actor, addressID string) ([]domain.Address, error) {
	if err := requireBuyer(actor); err != nil {
		return nil, err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return nil, fmt.Errorf("%w: address id is required", ErrCartInvalidInput)
	}

	book, err := s.addresses.List(ctx, actor.ID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	kept := book[:0]
	removed := false
	for _, addr := range book {
		if addr.ID == addressID {
			removed = true
			continue
		}
		kept = append(kept, addr)
	}
	if !removed {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotFound, addressID)
	}
	ensureSingleDefault(kept)

	if err := s.addresses.Save(ctx, actor.ID, kept); err != nil {
		return nil, s.translateRepoError(err)
	}
	return kept, nil
}

// SelectAddress marks an address as the default and clears the previous one.
func (s *cartService) SelectAddress(ctx context.Context, actor domain.Actor, addressID string) ([]domain.Address, error) {
	if err := requireBuyer(actor); err != nil {
		return nil, err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return nil, fmt.Errorf("%w: address id is required", ErrCartInvalidInput)
	}

	book, err := s.addresses.List(ctx, actor.ID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	found := false
	for i := range book {
		if book[i].ID == addressID {
			book[i].IsDefault = true
			found = true
		} else {
			book[i].IsDefault = false
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotFound, addressID)
	}

	if err := s.addresses.Save(ctx, actor.ID, book); err != nil {
		return nil, s.translateRepoError(err)
	}
	return book, nil
}

// ApplyPromotion validates a catalog code against the cart and slots it in.
func (s *cartService) ApplyPromotion(ctx context.Context, actor domain.Actor, code string, isNewCustomer bool) (CartView, error) {
	if err := requireBuyer(actor); err != nil {
		return CartView{}, err
	}

	promo, err := s.catalog.Lookup(ctx, code)
	if err != nil {
		return CartView{}, err
	}

	cart, err := s.loadCart(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}
	set, err := s.loadApplied(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}

	subtotal := s.engine.Subtotal(cart.Items)
	if err := s.engine.ValidatePromotion(promo, subtotal, isNewCustomer); err != nil {
		return CartView{}, err
	}
	set, err = s.engine.Apply(set, promo)
	if err != nil {
		return CartView{}, err
	}

	if err := s.applied.Save(ctx, actor.ID, set); err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	s.logger(ctx, "cart.promotion_applied", map[string]any{"userId": actor.ID, "code": promo.Code})

	return s.buildView(ctx, cart)
}

// RemovePromotion clears the applied promotion of the given class.
func (s *cartService) RemovePromotion(ctx context.Context, actor domain.Actor, class domain.PromotionClass) (CartView, error) {
	if err := requireBuyer(actor); err != nil {
		return CartView{}, err
	}

	set, err := s.loadApplied(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}
	switch class {
	case domain.PromotionClassShipping:
		set.Shipping = nil
	case domain.PromotionClassProduct:
		set.Product = nil
	default:
		return CartView{}, fmt.Errorf("%w: unknown promotion class %q", ErrCartInvalidInput, class)
	}

	if err := s.applied.Save(ctx, actor.ID, set); err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	cart, err := s.loadCart(ctx, actor.ID)
	if err != nil {
		return CartView{}, err
	}
	return s.buildView(ctx, cart)
}

func (s *cartService) loadCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Cart{
				UserID:   userID,
				Delivery: domain.DeliverySelection{Method: domain.DeliveryStandard},
			}, nil
		}
		return domain.Cart{}, s.translateRepoError(err)
	}
	if cart.Delivery.Method == "" {
		cart.Delivery.Method = domain.DeliveryStandard
	}
	return cart, nil
}

func (s *cartService) loadApplied(ctx context.Context, userID string) (domain.AppliedPromotions, error) {
	set, err := s.applied.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.AppliedPromotions{}, nil
		}
		return domain.AppliedPromotions{}, s.translateRepoError(err)
	}
	return set, nil
}

func (s *cartService) saveAndView(ctx context.Context, cart domain.Cart) (CartView, error) {
	cart.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, cart); err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildView(ctx, cart)
}

func (s *cartService) buildView(ctx context.Context, cart domain.Cart) (CartView, error) {
	set, err := s.loadApplied(ctx, cart.UserID)
	if err != nil {
		return CartView{}, err
	}
	book, err := s.addresses.List(ctx, cart.UserID)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	return CartView{
		Items:     cart.Items,
		Delivery:  cart.Delivery,
		Addresses: book,
		Applied:   set,
		Pricing:   s.engine.Quote(cart.Items, set, cart.Delivery, s.baseFee),
		UpdatedAt: cart.UpdatedAt,
	}, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCartItemNotFound
	}
	return ErrCartUnavailable
}

func requireBuyer(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" || !actor.IsBuyer() {
		return ErrNotAuthorized
	}
	return nil
}

func clearOtherDefaults(book []domain.Address, keepID string) {
	for i := range book {
		if book[i].ID != keepID {
			book[i].IsDefault = false
		}
	}
}

// ensureSingleDefault keeps the address book invariant: exactly one default
// when the book is non-empty.
func ensureSingleDefault(book []domain.Address) {
	if len(book) == 0 {
		return
	}
	defaultIdx := -1
	for i := range book {
		if !book[i].IsDefault {
			continue
		}
		if defaultIdx == -1 {
			defaultIdx = i
		} else {
			book[i].IsDefault = false
		}
	}
	if defaultIdx == -1 {
		book[0].IsDefault = true
	}
}
