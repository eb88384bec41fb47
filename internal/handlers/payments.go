package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mekongcart/api/internal/payments"
	"github.com/mekongcart/api/internal/platform/httpx"
	"github.com/mekongcart/api/internal/services"
)

const maxWebhookBodySize = 32 * 1024

// PaymentWebhookHandlers consumes asynchronous payment results from the
// gateways. The generic callback is authenticated by the signed-body
// middleware mounted on the webhook group; the wallet return carries its own
// query signature.
type PaymentWebhookHandlers struct {
	checkout services.CheckoutService
	wallet   *payments.WalletProvider
}

// NewPaymentWebhookHandlers constructs the webhook endpoints.
func NewPaymentWebhookHandlers(checkout services.CheckoutService, wallet *payments.WalletProvider) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{
		checkout: checkout,
		wallet:   wallet,
	}
}

// Routes registers the payment callback endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/gateway", h.gatewayCallback)
	r.Get("/payments/wallet/return", h.walletReturn)
}

type gatewayCallbackRequest struct {
	Reference        string `json:"reference"`
	Status           string `json:"status"`
	GatewayReference string `json:"gatewayReference"`
	FailureReason    string `json:"failureReason"`
}

func (h *PaymentWebhookHandlers) gatewayCallback(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
		return
	}

	var req gatewayCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, "request body must be valid JSON")
		return
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "succeeded", "failed":
	default:
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, "status must be succeeded or failed")
		return
	}

	outcome := services.PaymentOutcome{
		Succeeded:        status == "succeeded",
		GatewayReference: strings.TrimSpace(req.GatewayReference),
		FailureReason:    strings.TrimSpace(req.FailureReason),
	}
	if err := h.checkout.Finalize(r.Context(), req.Reference, outcome); err != nil {
		h.writeFinalizeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, map[string]any{"received": true})
}

// walletReturn is the browser redirect back from the e-wallet gateway. The
// query parameters are signed with the wallet shared secret.
func (h *PaymentWebhookHandlers) walletReturn(w http.ResponseWriter, r *http.Request) {
	if h.wallet == nil {
		httpx.WriteError(w, r, http.StatusNotFound, httpx.CodeNotFound, "wallet payments are not enabled")
		return
	}

	query := r.URL.Query()
	signature := query.Get("signature")
	query.Del("signature")
	if !h.wallet.VerifySignature(query, signature) {
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
		return
	}

	status := strings.ToLower(strings.TrimSpace(query.Get("status")))
	outcome := services.PaymentOutcome{
		Succeeded:        status == "succeeded",
		GatewayReference: strings.TrimSpace(query.Get("transaction_id")),
	}
	if !outcome.Succeeded {
		outcome.FailureReason = strings.TrimSpace(query.Get("reason"))
	}

	if err := h.checkout.Finalize(r.Context(), query.Get("reference"), outcome); err != nil {
		h.writeFinalizeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, r, http.StatusOK, map[string]any{"received": true})
}

func (h *PaymentWebhookHandlers) writeFinalizeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, httpx.CodeUnavailable, "checkout service is unavailable")
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.CodeInternal, "callback processing failed")
	}
}
