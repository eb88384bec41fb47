package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mekongcart/api/internal/domain"
)

// ErrUnsupportedMethod is returned when the manager cannot locate a provider
// for the requested payment method.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// LineItem describes a single order line forwarded to the gateway.
type LineItem struct {
	Name     string
	Quantity int64
	Amount   int64
}

// InitiateRequest captures the payload required to start a payment.
type InitiateRequest struct {
	Reference   string
	UserID      string
	Amount      int64
	Description string
	Items       []LineItem
	Metadata    map[string]string
}

// Initiation is the normalised result of starting a payment. Settled means the
// payment completed (or requires no gateway round trip) and the order can be
// finalised immediately. Otherwise the customer must be sent to RedirectURL and
// the order stays pending until the gateway calls back.
type Initiation struct {
	Settled      bool
	Reference    string
	RedirectURL  string
	Instructions map[string]string
	ExpiresAt    time.Time
}

// Provider defines the contract for payment adapters to implement.
type Provider interface {
	Initiate(ctx context.Context, req InitiateRequest) (Initiation, error)
}

// Manager routes payment initiation to the provider registered for a method.
type Manager struct {
	providers map[domain.PaymentMethod]Provider
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[domain.PaymentMethod]Provider) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[domain.PaymentMethod]Provider, len(providers))
	for method, provider := range providers {
		if !domain.KnownPaymentMethod(method) || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for method %q", method)
		}
		copyMap[method] = provider
	}
	return &Manager{providers: copyMap}, nil
}

// Supports reports whether a provider is registered for the method.
func (m *Manager) Supports(method domain.PaymentMethod) bool {
	if m == nil {
		return false
	}
	_, ok := m.providers[method]
	return ok
}

// Initiate delegates to the provider registered for the method.
func (m *Manager) Initiate(ctx context.Context, method domain.PaymentMethod, req InitiateRequest) (Initiation, error) {
	if m == nil {
		return Initiation{}, errors.New("payments: manager is nil")
	}
	provider, ok := m.providers[method]
	if !ok {
		return Initiation{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return provider.Initiate(ctx, req)
}
