package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/repositories"
)

var (
	// ErrOrderNotFound indicates the referenced order does not exist.
	ErrOrderNotFound = errors.New("fulfillment service: order not found")
	// ErrOrderUnavailable indicates the order backend cannot fulfil the request.
	ErrOrderUnavailable = errors.New("fulfillment service: unavailable")
	// ErrTerminalState indicates the order reached a state that permits no mutation.
	ErrTerminalState = errors.New("fulfillment service: order is in a terminal state")
	// ErrVerificationIncomplete indicates not every line passed the scan gate.
	ErrVerificationIncomplete = errors.New("fulfillment service: items not fully verified")
	// ErrOrderItemNotFound indicates the scanned product is not part of the order.
	ErrOrderItemNotFound = errors.New("fulfillment service: item not found on order")
)

// forwardTransitions is the one-way fulfillment path. Cancellation is handled
// separately and terminal states have no entry.
var forwardTransitions = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderStatusPending:          domain.OrderStatusProcessing,
	domain.OrderStatusProcessing:       domain.OrderStatusReadyForDelivery,
	domain.OrderStatusReadyForDelivery: domain.OrderStatusShipping,
	domain.OrderStatusShipping:         domain.OrderStatusCompleted,
}

// FulfillmentServiceDeps wires the order repository and event publisher.
type FulfillmentServiceDeps struct {
	Orders repositories.OrderRepository
	Events OrderEventPublisher
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type fulfillmentService struct {
	orders repositories.OrderRepository
	events OrderEventPublisher
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewFulfillmentService constructs a FulfillmentService enforcing dependency validation.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order repository is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &fulfillmentService{
		orders: deps.Orders,
		events: deps.Events,
		now:    func() time.Time { return now().UTC() },
		logger: logger,
	}, nil
}

// Get returns a single order. Buyers can only read their own orders.
func (s *fulfillmentService) Get(ctx context.Context, actor domain.Actor, reference string) (domain.Order, error) {
	order, err := s.load(ctx, reference)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsSeller() && order.UserID != actor.ID {
		return domain.Order{}, ErrNotAuthorized
	}
	return order, nil
}

// ListByUser returns the acting buyer's order history.
func (s *fulfillmentService) ListByUser(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return nil, ErrNotAuthorized
	}
	orders, err := s.orders.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return orders, nil
}

// Advance moves the order one step along the fulfillment path. Leaving
// ready_for_delivery requires every line to have passed the scan gate.
func (s *fulfillmentService) Advance(ctx context.Context, actor domain.Actor, reference string) (domain.Order, error) {
	if err := requireSeller(actor); err != nil {
		return domain.Order{}, err
	}

	order, err := s.load(ctx, reference)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.Terminal() {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrTerminalState, order.Status)
	}

	next, ok := forwardTransitions[order.Status]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrTerminalState, order.Status)
	}
	if order.Status == domain.OrderStatusReadyForDelivery && !order.AllItemsVerified() {
		return domain.Order{}, ErrVerificationIncomplete
	}

	previous := order.Status
	now := s.now()
	order.Status = next
	order.UpdatedAt = now
	switch next {
	case domain.OrderStatusShipping:
		order.ShippedAt = &now
	case domain.OrderStatusCompleted:
		order.CompletedAt = &now
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	s.publish(ctx, OrderEventMessage{
		Event:          OrderEventStatusChanged,
		Reference:      order.Reference,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		OccurredAt:     now,
	})
	s.logger(ctx, "fulfillment.advanced", map[string]any{
		"reference": order.Reference,
		"from":      string(previous),
		"to":        string(order.Status),
	})
	return order, nil
}

// VerifyItem records the packing scan for one product line.
func (s *fulfillmentService) VerifyItem(ctx context.Context, actor domain.Actor, reference, productID string) (domain.Order, error) {
	if err := requireSeller(actor); err != nil {
		return domain.Order{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Order{}, fmt.Errorf("%w: product id is required", ErrOrderItemNotFound)
	}

	order, err := s.load(ctx, reference)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.Terminal() {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrTerminalState, order.Status)
	}

	found := false
	for i := range order.Items {
		if order.Items[i].ProductID == productID {
			order.Items[i].Verified = true
			found = true
			break
		}
	}
	if !found {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderItemNotFound, productID)
	}

	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	s.logger(ctx, "fulfillment.item_verified", map[string]any{
		"reference": order.Reference,
		"productId": productID,
	})
	return order, nil
}

// Cancel stops fulfillment from any non-terminal state.
func (s *fulfillmentService) Cancel(ctx context.Context, actor domain.Actor, reference, reason string) (domain.Order, error) {
	if err := requireSeller(actor); err != nil {
		return domain.Order{}, err
	}

	order, err := s.load(ctx, reference)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.Terminal() {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrTerminalState, order.Status)
	}

	previous := order.Status
	now := s.now()
	order.Status = domain.OrderStatusCancelled
	order.CancelReason = strings.TrimSpace(reason)
	order.CancelledAt = &now
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	s.publish(ctx, OrderEventMessage{
		Event:          OrderEventCancelled,
		Reference:      order.Reference,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		OccurredAt:     now,
	})
	s.logger(ctx, "fulfillment.cancelled", map[string]any{
		"reference": order.Reference,
		"from":      string(previous),
		"reason":    order.CancelReason,
	})
	return order, nil
}

func (s *fulfillmentService) load(ctx context.Context, reference string) (domain.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Order{}, ErrOrderNotFound
	}
	order, err := s.orders.FindByReference(ctx, reference)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *fulfillmentService) publish(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "fulfillment.event_publish_failed", map[string]any{
			"reference": message.Reference,
			"event":     message.Event,
			"error":     err.Error(),
		})
	}
}

func (s *fulfillmentService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrOrderNotFound
	}
	return ErrOrderUnavailable
}

func requireSeller(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" || !actor.IsSeller() {
		return ErrNotAuthorized
	}
	return nil
}
