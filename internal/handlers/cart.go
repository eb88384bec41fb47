package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/platform/auth"
	"github.com/mekongcart/api/internal/platform/httpx"
	"github.com/mekongcart/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current buyer.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing bearer authentication before
// invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleBuyer))
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productID}", h.updateQuantity)
	r.Delete("/items/{productID}", h.removeItem)
	r.Put("/delivery", h.setDelivery)
	r.Post("/addresses", h.saveAddress)
	r.Delete("/addresses/{addressID}", h.removeAddress)
	r.Post("/addresses/{addressID}:select", h.selectAddress)
	r.Post("/promotions", h.applyPromotion)
	r.Delete("/promotions/{class}", h.removePromotion)
}

type cartItemPayload struct {
	ProductID     string     `json:"productId"`
	Title         string     `json:"title"`
	UnitPrice     int64      `json:"unitPrice"`
	OriginalPrice *int64     `json:"originalPrice,omitempty"`
	Quantity      int        `json:"quantity"`
	StoreID       string     `json:"storeId,omitempty"`
	StoreName     string     `json:"storeName,omitempty"`
	LineTotal     int64      `json:"lineTotal"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

type promotionPayload struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Value int64  `json:"value,omitempty"`
}

type pricingPayload struct {
	ItemCount        int   `json:"itemCount"`
	Subtotal         int64 `json:"subtotal"`
	ProductDiscount  int64 `json:"productDiscount"`
	ShippingFee      int64 `json:"shippingFee"`
	ShippingDiscount int64 `json:"shippingDiscount"`
	Total            int64 `json:"total"`
}

type cartPayload struct {
	Items      []cartItemPayload        `json:"items"`
	Delivery   domain.DeliverySelection `json:"delivery"`
	Addresses  []domain.Address         `json:"addresses"`
	Promotions []promotionPayload       `json:"promotions"`
	Pricing    pricingPayload           `json:"pricing"`
	UpdatedAt  *time.Time               `json:"updatedAt,omitempty"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

// Cart item prices and quantities arrive as JSON numbers from untrusted
// clients, so they are coerced through the domain sanitisers before the
// command is built.
type addItemRequest struct {
	ProductID     string     `json:"productId"`
	Title         string     `json:"title"`
	UnitPrice     float64    `json:"unitPrice"`
	OriginalPrice *float64   `json:"originalPrice"`
	Quantity      float64    `json:"quantity"`
	StoreID       string     `json:"storeId"`
	StoreName     string     `json:"storeName"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

type updateQuantityRequest struct {
	Quantity float64 `json:"quantity"`
}

type applyPromotionRequest struct {
	Code          string `json:"code"`
	IsNewCustomer bool   `json:"isNewCustomer"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	view, err := h.carts.View(r.Context(), actor)
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	if err := h.carts.Clear(r.Context(), actor); err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusNoContent, nil)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var req addItemRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	cmd := services.AddItemCommand{
		ProductID: strings.TrimSpace(req.ProductID),
		Title:     strings.TrimSpace(req.Title),
		UnitPrice: domain.SanitizeAmount(req.UnitPrice),
		Quantity:  domain.SanitizeQuantity(req.Quantity),
		StoreID:   strings.TrimSpace(req.StoreID),
		StoreName: strings.TrimSpace(req.StoreName),
		ExpiresAt: req.ExpiresAt,
	}
	if req.OriginalPrice != nil {
		original := domain.SanitizeAmount(*req.OriginalPrice)
		cmd.OriginalPrice = &original
	}

	view, err := h.carts.AddItem(r.Context(), actor, cmd)
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var req updateQuantityRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	productID := chi.URLParam(r, "productID")
	view, err := h.carts.UpdateQuantity(r.Context(), actor, productID, domain.SanitizeQuantity(req.Quantity))
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	view, err := h.carts.RemoveItem(r.Context(), actor, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) setDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var delivery domain.DeliverySelection
	if !h.decodeBody(w, r, &delivery) {
		return
	}

	view, err := h.carts.SetDelivery(r.Context(), actor, delivery)
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) saveAddress(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var address domain.Address
	if !h.decodeBody(w, r, &address) {
		return
	}

	book, err := h.carts.SaveAddress(r.Context(), actor, address)
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, map[string]any{"addresses": book})
}

func (h *CartHandlers) removeAddress(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	book, err := h.carts.RemoveAddress(r.Context(), actor, chi.URLParam(r, "addressID"))
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, map[string]any{"addresses": book})
}

func (h *CartHandlers) selectAddress(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	book, err := h.carts.SelectAddress(r.Context(), actor, chi.URLParam(r, "addressID"))
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, map[string]any{"addresses": book})
}

func (h *CartHandlers) applyPromotion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var req applyPromotionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	view, err := h.carts.ApplyPromotion(r.Context(), actor, req.Code, req.IsNewCustomer)
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removePromotion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	class := domain.PromotionClass(chi.URLParam(r, "class"))
	if class != domain.PromotionClassProduct && class != domain.PromotionClassShipping {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, "promotion class must be product or shipping")
		return
	}

	view, err := h.carts.RemovePromotion(r.Context(), actor, class)
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(w, r, http.StatusRequestEntityTooLarge, httpx.CodeBadRequest, "request body exceeds allowed size")
		default:
			httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, "request body must be valid JSON")
		return false
	}
	return true
}

func (h *CartHandlers) writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotAuthorized):
		httpx.WriteError(w, r, http.StatusForbidden, httpx.CodeForbidden, "operation not permitted")
	case errors.Is(err, services.ErrCartInvalidInput), errors.Is(err, services.ErrPromotionInvalidCode):
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, httpx.CodeNotFound, "item not found in cart")
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, httpx.CodeNotFound, "address not found")
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "promotion_not_found", "promotion code not found")
	case errors.Is(err, services.ErrPromotionAlreadyApplied), errors.Is(err, services.ErrPromotionDuplicateType):
		httpx.WriteError(w, r, http.StatusConflict, httpx.CodeConflict, err.Error())
	case errors.Is(err, services.ErrPromotionExpired),
		errors.Is(err, services.ErrPromotionMinimumOrder),
		errors.Is(err, services.ErrPromotionIneligible):
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "promotion_not_applicable", err.Error())
	case errors.Is(err, services.ErrCartUnavailable), errors.Is(err, services.ErrPromotionUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, httpx.CodeUnavailable, "cart service is unavailable")
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.CodeInternal, "cart operation failed")
	}
}

func buildCartPayload(view services.CartView) cartPayload {
	items := make([]cartItemPayload, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, cartItemPayload{
			ProductID:     item.ProductID,
			Title:         item.Title,
			UnitPrice:     item.UnitPrice,
			OriginalPrice: item.OriginalPrice,
			Quantity:      item.Quantity,
			StoreID:       item.StoreID,
			StoreName:     item.StoreName,
			LineTotal:     item.LineTotal(),
			ExpiresAt:     item.ExpiresAt,
		})
	}

	promotions := make([]promotionPayload, 0, 2)
	for _, promo := range []*domain.Promotion{view.Applied.Product, view.Applied.Shipping} {
		if promo == nil {
			continue
		}
		promotions = append(promotions, promotionPayload{
			Code:  promo.Code,
			Kind:  string(promo.Kind),
			Value: promo.Value,
		})
	}

	payload := cartPayload{
		Items:      items,
		Delivery:   view.Delivery,
		Addresses:  view.Addresses,
		Promotions: promotions,
		Pricing: pricingPayload{
			ItemCount:        view.Pricing.ItemCount,
			Subtotal:         view.Pricing.Subtotal,
			ProductDiscount:  view.Pricing.ProductDiscount,
			ShippingFee:      view.Pricing.ShippingFee,
			ShippingDiscount: view.Pricing.ShippingDiscount,
			Total:            view.Pricing.Total,
		},
	}
	if !view.UpdatedAt.IsZero() {
		updated := view.UpdatedAt
		payload.UpdatedAt = &updated
	}
	return payload
}
