package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/platform/auth"
	"github.com/mekongcart/api/internal/platform/httpx"
	"github.com/mekongcart/api/internal/services"
)

const maxCheckoutBodySize = 8 * 1024

// CheckoutHandlers exposes checkout endpoints for authenticated buyers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by bearer authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleBuyer))
	}
	r.Post("/", h.submit)
	r.Delete("/{reference}", h.cancelPending)
}

type submitCheckoutRequest struct {
	Customer      domain.CustomerInfo      `json:"customer"`
	Delivery      domain.DeliverySelection `json:"delivery"`
	PaymentMethod string                   `json:"paymentMethod"`
	IsNewCustomer bool                     `json:"isNewCustomer"`
}

type submitCheckoutResponse struct {
	Reference    string            `json:"reference"`
	Settled      bool              `json:"settled"`
	RedirectURL  string            `json:"redirectUrl,omitempty"`
	Instructions map[string]string `json:"instructions,omitempty"`
	Pricing      pricingPayload    `json:"pricing"`
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(w, r, status, httpx.CodeBadRequest, err.Error())
		return
	}

	var req submitCheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, "request body must be valid JSON")
		return
	}

	result, err := h.checkout.Submit(r.Context(), services.SubmitCheckoutCommand{
		Actor:         actor,
		Customer:      req.Customer,
		Delivery:      req.Delivery,
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		IsNewCustomer: req.IsNewCustomer,
	})
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !result.Settled {
		// The order is not confirmed yet; the buyer must follow the redirect.
		status = http.StatusAccepted
	}
	httpx.WriteJSON(w, r, status, submitCheckoutResponse{
		Reference:    result.Reference,
		Settled:      result.Settled,
		RedirectURL:  result.RedirectURL,
		Instructions: result.Instructions,
		Pricing: pricingPayload{
			ItemCount:        result.Pricing.ItemCount,
			Subtotal:         result.Pricing.Subtotal,
			ProductDiscount:  result.Pricing.ProductDiscount,
			ShippingFee:      result.Pricing.ShippingFee,
			ShippingDiscount: result.Pricing.ShippingDiscount,
			Total:            result.Pricing.Total,
		},
	})
}

func (h *CheckoutHandlers) cancelPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	if err := h.checkout.CancelPending(r.Context(), actor, chi.URLParam(r, "reference")); err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusNoContent, nil)
}

func (h *CheckoutHandlers) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotAuthorized):
		httpx.WriteError(w, r, http.StatusForbidden, httpx.CodeForbidden, "operation not permitted")
	case errors.Is(err, services.ErrCheckoutMissingDelivery):
		httpx.WriteError(w, r, http.StatusBadRequest, "delivery_incomplete", err.Error())
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(w, r, http.StatusConflict, "empty_cart", "cart has no items to order")
	case errors.Is(err, services.ErrCheckoutInFlight):
		httpx.WriteError(w, r, http.StatusConflict, "checkout_in_flight", "another submission is already in progress")
	case errors.Is(err, services.ErrCheckoutPaymentRejected):
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "payment_rejected", "payment could not be initiated")
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, httpx.CodeUnavailable, "checkout service is unavailable")
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.CodeInternal, "checkout failed")
	}
}
