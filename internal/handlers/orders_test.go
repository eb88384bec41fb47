package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/mekongcart/api/internal/domain"
	"github.com/mekongcart/api/internal/platform/auth"
	"github.com/mekongcart/api/internal/services"
)

func newOrderRouter(svc services.FulfillmentService) chi.Router {
	h := NewOrderHandlers(nil, svc)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func sampleOrder(status domain.OrderStatus) domain.Order {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	return domain.Order{
		Reference: "ord_1",
		UserID:    "user_1",
		Status:    status,
		Items: []domain.OrderLineItem{
			{CartItem: domain.CartItem{ProductID: "p1", Title: "Rice 5kg", UnitPrice: 120_000, Quantity: 2}, Verified: true},
		},
		PaymentMethod: domain.PaymentCashOnDelivery,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	router := newOrderRouter(&stubFulfillmentService{order: sampleOrder(domain.OrderStatusProcessing)})

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/ord_1", nil), "user_1", auth.RoleBuyer)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Order.Reference != "ord_1" || body.Order.Status != "processing" {
		t.Fatalf("unexpected order payload: %+v", body.Order)
	}
	if len(body.Order.Items) != 1 || !body.Order.Items[0].Verified {
		t.Fatalf("expected verified item in payload, got %+v", body.Order.Items)
	}
}

func TestOrderHandlersAdvanceActionRoute(t *testing.T) {
	router := newOrderRouter(&stubFulfillmentService{order: sampleOrder(domain.OrderStatusShipping)})

	req := authedRequest(httptest.NewRequest(http.MethodPost, "/ord_1:advance", nil), "staff_1", auth.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Order.Status != "shipping" {
		t.Fatalf("expected status shipping, got %s", body.Order.Status)
	}
}

func TestOrderHandlersVerifyItemRoute(t *testing.T) {
	router := newOrderRouter(&stubFulfillmentService{order: sampleOrder(domain.OrderStatusReadyForDelivery)})

	req := authedRequest(httptest.NewRequest(http.MethodPost, "/ord_1/items/p1:verify", nil), "staff_1", auth.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersCancelWithReason(t *testing.T) {
	router := newOrderRouter(&stubFulfillmentService{order: sampleOrder(domain.OrderStatusCancelled)})

	req := authedRequest(httptest.NewRequest(http.MethodPost, "/ord_1:cancel", strings.NewReader(`{"reason":"out of stock"}`)), "staff_1", auth.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not authorized", services.ErrNotAuthorized, http.StatusForbidden, "forbidden"},
		{"not found", services.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"item not found", services.ErrOrderItemNotFound, http.StatusNotFound, "order_item_not_found"},
		{"terminal", services.ErrTerminalState, http.StatusConflict, "order_terminal"},
		{"verification incomplete", services.ErrVerificationIncomplete, http.StatusConflict, "verification_incomplete"},
		{"unavailable", services.ErrOrderUnavailable, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newOrderRouter(&stubFulfillmentService{err: tc.err})

			req := authedRequest(httptest.NewRequest(http.MethodPost, "/ord_1:advance", nil), "staff_1", auth.RoleSeller)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			var body map[string]map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if body["error"]["code"] != tc.code {
				t.Fatalf("expected code %q, got %v", tc.code, body["error"]["code"])
			}
		})
	}
}
