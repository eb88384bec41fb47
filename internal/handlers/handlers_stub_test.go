package handlers

import (
	"context"
	"net/http"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/platform/auth"
	"github.com/mekongcart/api/internal/services"
)

// stubCartService returns canned values so handler mapping can be tested in
// isolation from the real service.
type stubCartService struct {
	view    services.CartView
	book    []domain.Address
	err     error
	lastCmd services.AddItemCommand
}

func (s *stubCartService) View(context.Context, domain.Actor) (services.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) AddItem(_ context.Context, _ domain.Actor, cmd services.AddItemCommand) (services.CartView, error) {
	s.lastCmd = cmd
	return s.view, s.err
}

func (s *stubCartService) UpdateQuantity(context.Context, domain.Actor, string, int) (services.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) RemoveItem(context.Context, domain.Actor, string) (services.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) Clear(context.Context, domain.Actor) error {
	return s.err
}

func (s *stubCartService) SetDelivery(context.Context, domain.Actor, domain.DeliverySelection) (services.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) SaveAddress(context.Context, domain.Actor, domain.Address) ([]domain.Address, error) {
	return s.book, s.err
}

func (s *stubCartService) RemoveAddress(context.Context, domain.Actor, string) ([]domain.Address, error) {
	return s.book, s.err
}

func (s *stubCartService) SelectAddress(context.Context, domain.Actor, string) ([]domain.Address, error) {
	return s.book, s.err
}

func (s *stubCartService) ApplyPromotion(context.Context, domain.Actor, string, bool) (services.CartView, error) {
	return s.view, s.err
}

func (s *stubCartService) RemovePromotion(context.Context, domain.Actor, domain.PromotionClass) (services.CartView, error) {
	return s.view, s.err
}

type stubCheckoutService struct {
	result       services.CheckoutResult
	submitErr    error
	finalizeErr  error
	cancelErr    error
	lastOutcome  services.PaymentOutcome
	lastRef      string
	finalizeHits int
}

func (s *stubCheckoutService) Submit(context.Context, services.SubmitCheckoutCommand) (services.CheckoutResult, error) {
	return s.result, s.submitErr
}

func (s *stubCheckoutService) Finalize(_ context.Context, reference string, outcome services.PaymentOutcome) error {
	s.finalizeHits++
	s.lastRef = reference
	s.lastOutcome = outcome
	return s.finalizeErr
}

func (s *stubCheckoutService) CancelPending(context.Context, domain.Actor, string) error {
	return s.cancelErr
}

type stubFulfillmentService struct {
	order domain.Order
	list  []domain.Order
	err   error
}

func (s *stubFulfillmentService) Get(context.Context, domain.Actor, string) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubFulfillmentService) ListByUser(context.Context, domain.Actor) ([]domain.Order, error) {
	return s.list, s.err
}

func (s *stubFulfillmentService) Advance(context.Context, domain.Actor, string) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubFulfillmentService) VerifyItem(context.Context, domain.Actor, string, string) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubFulfillmentService) Cancel(context.Context, domain.Actor, string, string) (domain.Order, error) {
	return s.order, s.err
}

func authedRequest(req *http.Request, userID, role string) *http.Request {
	identity := &auth.Identity{UserID: userID, Role: role}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}
