package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/platform/auth"
	"github.com/mekongcart/api/internal/platform/httpx"
	"github.com/mekongcart/api/internal/services"
)

const maxOrderBodySize = 4 * 1024

// OrderHandlers exposes buyer order history and the seller fulfillment flow.
type OrderHandlers struct {
	authn       *auth.Authenticator
	fulfillment services.FulfillmentService
}

// NewOrderHandlers constructs order handlers guarded by bearer authentication.
func NewOrderHandlers(authn *auth.Authenticator, fulfillment services.FulfillmentService) *OrderHandlers {
	return &OrderHandlers{
		authn:       authn,
		fulfillment: fulfillment,
	}
}

// Routes registers order endpoints. Reads are open to buyers and sellers;
// fulfillment actions require the seller role.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	read := r
	if h.authn != nil {
		read = r.With(h.authn.RequireAuth(auth.RoleBuyer, auth.RoleSeller))
	}
	read.Get("/", h.listOrders)
	read.Get("/{reference}", h.getOrder)

	actions := r
	if h.authn != nil {
		actions = r.With(h.authn.RequireAuth(auth.RoleSeller))
	}
	actions.Post("/{reference}:advance", h.advanceOrder)
	actions.Post("/{reference}:cancel", h.cancelOrder)
	actions.Post("/{reference}/items/{productID}:verify", h.verifyItem)
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
	Verified  bool   `json:"verified"`
}

type orderPayload struct {
	Reference        string                   `json:"reference"`
	Status           string                   `json:"status"`
	Items            []orderItemPayload       `json:"items"`
	Pricing          pricingPayload           `json:"pricing"`
	Delivery         domain.DeliverySelection `json:"delivery"`
	Customer         domain.CustomerInfo      `json:"customer"`
	PaymentMethod    string                   `json:"paymentMethod"`
	PaymentReference string                   `json:"paymentReference,omitempty"`
	CancelReason     string                   `json:"cancelReason,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
	ShippedAt        *time.Time               `json:"shippedAt,omitempty"`
	CompletedAt      *time.Time               `json:"completedAt,omitempty"`
	CancelledAt      *time.Time               `json:"cancelledAt,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	orders, err := h.fulfillment.ListByUser(r.Context(), actor)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, r, http.StatusOK, map[string]any{"orders": payloads})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	order, err := h.fulfillment.Get(r.Context(), actor, chi.URLParam(r, "reference"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) advanceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	order, err := h.fulfillment.Advance(r.Context(), actor, chi.URLParam(r, "reference"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var req cancelOrderRequest
	if body, err := readLimitedBody(r, maxOrderBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, "request body must be valid JSON")
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
		return
	}

	order, err := h.fulfillment.Cancel(r.Context(), actor, chi.URLParam(r, "reference"), req.Reason)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) verifyItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	order, err := h.fulfillment.VerifyItem(r.Context(), actor, chi.URLParam(r, "reference"), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotAuthorized):
		httpx.WriteError(w, r, http.StatusForbidden, httpx.CodeForbidden, "operation not permitted")
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, httpx.CodeNotFound, "order not found")
	case errors.Is(err, services.ErrOrderItemNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "order_item_not_found", "item not found on order")
	case errors.Is(err, services.ErrTerminalState):
		httpx.WriteError(w, r, http.StatusConflict, "order_terminal", "order is in a terminal state")
	case errors.Is(err, services.ErrVerificationIncomplete):
		httpx.WriteError(w, r, http.StatusConflict, "verification_incomplete", "all items must be verified before dispatch")
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, httpx.CodeUnavailable, "order service is unavailable")
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.CodeInternal, "order operation failed")
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
			Verified:  item.Verified,
		})
	}

	return orderPayload{
		Reference: order.Reference,
		Status:    string(order.Status),
		Items:     items,
		Pricing: pricingPayload{
			ItemCount:        order.Pricing.ItemCount,
			Subtotal:         order.Pricing.Subtotal,
			ProductDiscount:  order.Pricing.ProductDiscount,
			ShippingFee:      order.Pricing.ShippingFee,
			ShippingDiscount: order.Pricing.ShippingDiscount,
			Total:            order.Pricing.Total,
		},
		Delivery:         order.Delivery,
		Customer:         order.Customer,
		PaymentMethod:    string(order.PaymentMethod),
		PaymentReference: order.PaymentReference,
		CancelReason:     order.CancelReason,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
		ShippedAt:        order.ShippedAt,
		CompletedAt:      order.CompletedAt,
		CancelledAt:      order.CancelledAt,
	}
}
