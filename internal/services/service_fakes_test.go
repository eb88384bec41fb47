package services

import (
	"context"
	"errors"
	"strings"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/payments"
	"github.com/mekongcart/api/internal/repositories"
)

type fakeCartRepo struct {
	carts  map[string]domain.Cart
	getErr error
	upErr  error
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[string]domain.Cart)}
}

func (f *fakeCartRepo) Get(_ context.Context, userID string) (domain.Cart, error) {
	if f.getErr != nil {
		return domain.Cart{}, f.getErr
	}
	cart, ok := f.carts[userID]
	if !ok {
		return domain.Cart{}, repositories.NotFound("fake cart get", errors.New("missing"))
	}
	return cart, nil
}

func (f *fakeCartRepo) Save(_ context.Context, cart domain.Cart) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.carts[cart.UserID] = cart
	return nil
}

func (f *fakeCartRepo) Clear(_ context.Context, userID string) error {
	delete(f.carts, userID)
	return nil
}

type fakeAddressRepo struct {
	books map[string][]domain.Address
}

func newFakeAddressRepo() *fakeAddressRepo {
	return &fakeAddressRepo{books: make(map[string][]domain.Address)}
}

func (f *fakeAddressRepo) List(_ context.Context, userID string) ([]domain.Address, error) {
	return f.books[userID], nil
}

func (f *fakeAddressRepo) Save(_ context.Context, userID string, addresses []domain.Address) error {
	f.books[userID] = addresses
	return nil
}

type fakeAppliedRepo struct {
	sets map[string]domain.AppliedPromotions
}

func newFakeAppliedRepo() *fakeAppliedRepo {
	return &fakeAppliedRepo{sets: make(map[string]domain.AppliedPromotions)}
}

func (f *fakeAppliedRepo) Get(_ context.Context, userID string) (domain.AppliedPromotions, error) {
	return f.sets[userID], nil
}

func (f *fakeAppliedRepo) Save(_ context.Context, userID string, set domain.AppliedPromotions) error {
	f.sets[userID] = set
	return nil
}

func (f *fakeAppliedRepo) Clear(_ context.Context, userID string) error {
	delete(f.sets, userID)
	return nil
}

type fakeCatalog struct {
	promos map[string]domain.Promotion
}

func (f *fakeCatalog) Lookup(_ context.Context, code string) (domain.Promotion, error) {
	promo, ok := f.promos[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return domain.Promotion{}, ErrPromotionNotFound
	}
	return promo, nil
}

type fakePromotionRepo struct {
	promos map[string]domain.Promotion
}

func newFakePromotionRepo() *fakePromotionRepo {
	return &fakePromotionRepo{promos: make(map[string]domain.Promotion)}
}

func (f *fakePromotionRepo) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	promo, ok := f.promos[code]
	if !ok {
		return domain.Promotion{}, repositories.NotFound("fake promotion find", errors.New("missing"))
	}
	return promo, nil
}

func (f *fakePromotionRepo) Put(_ context.Context, promotion domain.Promotion) error {
	f.promos[promotion.Code] = promotion
	return nil
}

type fakePendingRepo struct {
	byRef  map[string]domain.PendingOrder
	byUser map[string]string
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{
		byRef:  make(map[string]domain.PendingOrder),
		byUser: make(map[string]string),
	}
}

func (f *fakePendingRepo) Insert(_ context.Context, pending domain.PendingOrder) error {
	if _, busy := f.byUser[pending.UserID]; busy {
		return repositories.Conflict("fake pending insert", errors.New("snapshot exists"))
	}
	f.byRef[pending.Reference] = pending
	f.byUser[pending.UserID] = pending.Reference
	return nil
}

func (f *fakePendingRepo) FindByReference(_ context.Context, reference string) (domain.PendingOrder, error) {
	pending, ok := f.byRef[reference]
	if !ok {
		return domain.PendingOrder{}, repositories.NotFound("fake pending find", errors.New("missing"))
	}
	return pending, nil
}

func (f *fakePendingRepo) FindByUser(_ context.Context, userID string) (domain.PendingOrder, error) {
	ref, ok := f.byUser[userID]
	if !ok {
		return domain.PendingOrder{}, repositories.NotFound("fake pending find", errors.New("missing"))
	}
	return f.byRef[ref], nil
}

func (f *fakePendingRepo) Delete(_ context.Context, reference string) error {
	pending, ok := f.byRef[reference]
	if !ok {
		return nil
	}
	delete(f.byRef, reference)
	delete(f.byUser, pending.UserID)
	return nil
}

type fakeOrderRepo struct {
	orders    map[string]domain.Order
	updateErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]domain.Order)}
}

func (f *fakeOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if _, exists := f.orders[order.Reference]; exists {
		return repositories.Conflict("fake order insert", errors.New("duplicate reference"))
	}
	f.orders[order.Reference] = order
	return nil
}

func (f *fakeOrderRepo) Update(_ context.Context, order domain.Order) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, exists := f.orders[order.Reference]; !exists {
		return repositories.NotFound("fake order update", errors.New("missing"))
	}
	f.orders[order.Reference] = order
	return nil
}

func (f *fakeOrderRepo) FindByReference(_ context.Context, reference string) (domain.Order, error) {
	order, ok := f.orders[reference]
	if !ok {
		return domain.Order{}, repositories.NotFound("fake order find", errors.New("missing"))
	}
	return order, nil
}

func (f *fakeOrderRepo) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

type fakePaymentInitiator struct {
	methods     map[domain.PaymentMethod]payments.Initiation
	initiateErr error
	calls       []payments.InitiateRequest
}

func (f *fakePaymentInitiator) Supports(method domain.PaymentMethod) bool {
	_, ok := f.methods[method]
	return ok
}

func (f *fakePaymentInitiator) Initiate(_ context.Context, method domain.PaymentMethod, req payments.InitiateRequest) (payments.Initiation, error) {
	f.calls = append(f.calls, req)
	if f.initiateErr != nil {
		return payments.Initiation{}, f.initiateErr
	}
	initiation, ok := f.methods[method]
	if !ok {
		return payments.Initiation{}, payments.ErrUnsupportedMethod
	}
	initiation.Reference = req.Reference
	return initiation, nil
}

type fakeEventPublisher struct {
	messages []OrderEventMessage
	err      error
}

func (f *fakeEventPublisher) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, message)
	return "msg_1", nil
}
