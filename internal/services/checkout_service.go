package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/payments"
	"github.com/mekongcart/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the submission payload is malformed.
	ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")
	// ErrCheckoutEmptyCart indicates there is nothing to order.
	ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")
	// ErrCheckoutMissingDelivery indicates the delivery selection lacks a
	// method-specific field. The submission leaves no trace when this fires.
	ErrCheckoutMissingDelivery = errors.New("checkout service: delivery selection incomplete")
	// ErrCheckoutInFlight indicates another submission for the same cart is in progress.
	ErrCheckoutInFlight = errors.New("checkout service: submission already in flight")
	// ErrCheckoutPaymentRejected indicates the payment provider refused to initiate.
	ErrCheckoutPaymentRejected = errors.New("checkout service: payment rejected")
	// ErrCheckoutUnavailable indicates the checkout backend cannot fulfil the request.
	ErrCheckoutUnavailable = errors.New("checkout service: unavailable")
)

const (
	orderReferencePrefix = "ord_"

	// defaultPendingTTL bounds how long an unfinished gateway checkout can
	// block the buyer from submitting again.
	defaultPendingTTL = 30 * time.Minute
)

// PaymentInitiator is the slice of the payments manager checkout depends on.
type PaymentInitiator interface {
	Supports(method domain.PaymentMethod) bool
	Initiate(ctx context.Context, method domain.PaymentMethod, req payments.InitiateRequest) (payments.Initiation, error)
}

// CheckoutServiceDeps wires the repositories and collaborators for checkout.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Applied     repositories.AppliedPromotionRepository
	Pending     repositories.PendingOrderRepository
	Orders      repositories.OrderRepository
	Engine      PricingEngine
	Payments    PaymentInitiator
	Events      OrderEventPublisher
	BaseFee     int64
	PendingTTL  time.Duration
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type checkoutService struct {
	carts      repositories.CartRepository
	applied    repositories.AppliedPromotionRepository
	pending    repositories.PendingOrderRepository
	orders     repositories.OrderRepository
	engine     PricingEngine
	payments   PaymentInitiator
	events     OrderEventPublisher
	baseFee    int64
	pendingTTL time.Duration
	now        func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Applied == nil {
		return nil, errors.New("checkout service: applied promotion repository is required")
	}
	if deps.Pending == nil {
		return nil, errors.New("checkout service: pending order repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payments manager is required")
	}

	baseFee := deps.BaseFee
	if baseFee <= 0 {
		baseFee = defaultBaseShippingFee
	}
	pendingTTL := deps.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
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

	return &checkoutService{
		carts:      deps.Carts,
		applied:    deps.Applied,
		pending:    deps.Pending,
		orders:     deps.Orders,
		engine:     deps.Engine,
		payments:   deps.Payments,
		events:     deps.Events,
		baseFee:    baseFee,
		pendingTTL: pendingTTL,
		now:        func() time.Time { return now().UTC() },
		newID:      idGen,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
	}, nil
}

// Submit validates the form, snapshots the cart and dispatches payment. With a
// synchronous method the order is confirmed before returning; otherwise the
// result carries the gateway redirect and the snapshot waits for the callback.
func (s *checkoutService) Submit(ctx context.Context, cmd SubmitCheckoutCommand) (CheckoutResult, error) {
	if err := requireBuyer(cmd.Actor); err != nil {
		return CheckoutResult{}, err
	}
	if !domain.KnownPaymentMethod(cmd.PaymentMethod) {
		return CheckoutResult{}, fmt.Errorf("%w: unknown payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}
	if !s.payments.Supports(cmd.PaymentMethod) {
		return CheckoutResult{}, fmt.Errorf("%w: payment method %q not enabled", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}
	if err := validateCustomer(cmd.Customer); err != nil {
		return CheckoutResult{}, err
	}
	if err := validateDelivery(cmd.Delivery); err != nil {
		return CheckoutResult{}, err
	}

	userID := cmd.Actor.ID
	if !s.acquire(userID) {
		return CheckoutResult{}, ErrCheckoutInFlight
	}
	defer s.release(userID)

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, ErrCheckoutEmptyCart
		}
		return CheckoutResult{}, ErrCheckoutUnavailable
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	set, err := s.applied.Get(ctx, userID)
	if err != nil && !isRepoNotFound(err) {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	// A gateway checkout that never called back would block the buyer
	// forever. Snapshots older than the TTL are abandoned and evicted.
	if stale, err := s.pending.FindByUser(ctx, userID); err == nil {
		if s.now().Sub(stale.CreatedAt) >= s.pendingTTL {
			if delErr := s.pending.Delete(ctx, stale.Reference); delErr != nil {
				return CheckoutResult{}, ErrCheckoutUnavailable
			}
			s.logger(ctx, "checkout.pending_expired", map[string]any{"reference": stale.Reference, "user_id": userID})
		}
	} else if !isRepoNotFound(err) {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	pricing := s.engine.Quote(cart.Items, set, cmd.Delivery, s.baseFee)
	reference := orderReferencePrefix + s.newID()

	snapshot := domain.PendingOrder{
		Reference:     reference,
		UserID:        userID,
		Items:         cart.Items,
		Pricing:       pricing,
		Delivery:      cmd.Delivery,
		Customer:      cmd.Customer,
		PaymentMethod: cmd.PaymentMethod,
		CreatedAt:     s.now(),
	}
	if err := s.pending.Insert(ctx, snapshot); err != nil {
		if isRepoConflict(err) {
			return CheckoutResult{}, ErrCheckoutInFlight
		}
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	initiation, err := s.payments.Initiate(ctx, cmd.PaymentMethod, payments.InitiateRequest{
		Reference:   reference,
		UserID:      userID,
		Amount:      pricing.Total,
		Description: fmt.Sprintf("Order %s", reference),
		Items:       paymentLineItems(cart.Items),
	})
	if err != nil {
		if delErr := s.pending.Delete(ctx, reference); delErr != nil {
			s.logger(ctx, "checkout.pending_cleanup_failed", map[string]any{"reference": reference, "error": delErr.Error()})
		}
		s.logger(ctx, "checkout.payment_initiation_failed", map[string]any{"reference": reference, "method": string(cmd.PaymentMethod), "error": err.Error()})
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentRejected, err)
	}

	if !initiation.Settled {
		s.logger(ctx, "checkout.awaiting_gateway", map[string]any{"reference": reference, "method": string(cmd.PaymentMethod)})
		return CheckoutResult{
			Reference:   reference,
			Settled:     false,
			RedirectURL: initiation.RedirectURL,
			Pricing:     pricing,
		}, nil
	}

	if err := s.confirm(ctx, snapshot, ""); err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{
		Reference:    reference,
		Settled:      true,
		Instructions: initiation.Instructions,
		Pricing:      pricing,
	}, nil
}

// Finalize consumes a gateway callback. Unknown references are treated as
// already settled or cancelled and ignored, which makes retries and stale
// callbacks harmless.
func (s *checkoutService) Finalize(ctx context.Context, reference string, outcome PaymentOutcome) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return fmt.Errorf("%w: order reference is required", ErrCheckoutInvalidInput)
	}

	snapshot, err := s.pending.FindByReference(ctx, reference)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "checkout.callback_ignored", map[string]any{"reference": reference})
			return nil
		}
		return ErrCheckoutUnavailable
	}

	if !outcome.Succeeded {
		// Keep the snapshot so the buyer can retry payment.
		s.logger(ctx, "checkout.payment_failed", map[string]any{
			"reference": reference,
			"reason":    outcome.FailureReason,
		})
		return nil
	}

	return s.confirm(ctx, snapshot, outcome.GatewayReference)
}

// CancelPending discards the buyer's checkout snapshot. A gateway callback
// arriving afterwards finds nothing and is ignored.
func (s *checkoutService) CancelPending(ctx context.Context, actor domain.Actor, reference string) error {
	if err := requireBuyer(actor); err != nil {
		return err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return fmt.Errorf("%w: order reference is required", ErrCheckoutInvalidInput)
	}

	snapshot, err := s.pending.FindByReference(ctx, reference)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return ErrCheckoutUnavailable
	}
	if snapshot.UserID != actor.ID {
		return ErrNotAuthorized
	}

	if err := s.pending.Delete(ctx, reference); err != nil && !isRepoNotFound(err) {
		return ErrCheckoutUnavailable
	}
	s.logger(ctx, "checkout.cancelled", map[string]any{"reference": reference})
	return nil
}

// confirm turns the snapshot into a durable order, clears the cart and
// removes the snapshot. Inserting the order twice for the same reference is a
// conflict, which makes duplicate callbacks converge on the same result.
func (s *checkoutService) confirm(ctx context.Context, snapshot domain.PendingOrder, paymentRef string) error {
	now := s.now()
	items := make([]domain.OrderLineItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, domain.OrderLineItem{CartItem: item})
	}

	order := domain.Order{
		Reference:        snapshot.Reference,
		UserID:           snapshot.UserID,
		Status:           domain.OrderStatusPending,
		Items:            items,
		Pricing:          snapshot.Pricing,
		Delivery:         snapshot.Delivery,
		Customer:         snapshot.Customer,
		PaymentMethod:    snapshot.PaymentMethod,
		PaymentReference: strings.TrimSpace(paymentRef),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if isRepoConflict(err) {
			// Already confirmed by an earlier callback; just drop the snapshot.
			_ = s.pending.Delete(ctx, snapshot.Reference)
			return nil
		}
		return ErrCheckoutUnavailable
	}

	if err := s.carts.Clear(ctx, snapshot.UserID); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{"reference": snapshot.Reference, "error": err.Error()})
	}
	if err := s.applied.Clear(ctx, snapshot.UserID); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "checkout.promotions_clear_failed", map[string]any{"reference": snapshot.Reference, "error": err.Error()})
	}
	if err := s.pending.Delete(ctx, snapshot.Reference); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "checkout.pending_delete_failed", map[string]any{"reference": snapshot.Reference, "error": err.Error()})
	}

	s.publish(ctx, OrderEventMessage{
		Event:      OrderEventCreated,
		Reference:  order.Reference,
		UserID:     order.UserID,
		Status:     order.Status,
		OccurredAt: now,
	})
	s.logger(ctx, "checkout.order_confirmed", map[string]any{
		"reference": order.Reference,
		"method":    string(order.PaymentMethod),
		"total":     order.Pricing.Total,
	})
	return nil
}

func (s *checkoutService) publish(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"reference": message.Reference,
			"event":     message.Event,
			"error":     err.Error(),
		})
	}
}

func (s *checkoutService) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *checkoutService) release(userID string) {
	s.mu.Lock()
	delete(s.inFlight, userID)
	s.mu.Unlock()
}

func validateCustomer(customer domain.CustomerInfo) error {
	if strings.TrimSpace(customer.FullName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(customer.Phone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrCheckoutInvalidInput)
	}
	return nil
}

// validateDelivery enforces the method-specific required fields before any
// state is written.
func validateDelivery(delivery domain.DeliverySelection) error {
	if !domain.KnownDeliveryMethod(delivery.Method) {
		return fmt.Errorf("%w: unknown delivery method %q", ErrCheckoutInvalidInput, delivery.Method)
	}
	switch delivery.Method {
	case domain.DeliveryScheduled:
		if delivery.ScheduledDate == nil || delivery.ScheduledDate.IsZero() {
			return fmt.Errorf("%w: scheduled delivery needs a date", ErrCheckoutMissingDelivery)
		}
		if strings.TrimSpace(delivery.TimeSlot) == "" {
			return fmt.Errorf("%w: scheduled delivery needs a time slot", ErrCheckoutMissingDelivery)
		}
	case domain.DeliveryPickup:
		if strings.TrimSpace(delivery.PickupStoreID) == "" {
			return fmt.Errorf("%w: pickup needs a store", ErrCheckoutMissingDelivery)
		}
	case domain.DeliveryLocker:
		if strings.TrimSpace(delivery.LockerID) == "" {
			return fmt.Errorf("%w: locker delivery needs a locker", ErrCheckoutMissingDelivery)
		}
	}
	return nil
}

func paymentLineItems(items []domain.CartItem) []payments.LineItem {
	out := make([]payments.LineItem, 0, len(items))
	for _, item := range items {
		if item.LineTotal() == 0 {
			continue
		}
		out = append(out, payments.LineItem{
			Name:     item.Title,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitPrice,
		})
	}
	return out
}
