package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/payments"
	"github.com/asg-shop/api/internal/platform/auth"
	"github.com/asg-shop/api/internal/platform/httpx"
	"github.com/asg-shop/api/internal/platform/requestctx"
	"github.com/asg-shop/api/internal/services"
)

const maxCheckoutRequestBody = 256 * 1024

// checkoutService settles orders for the storefront.
type checkoutService interface {
	Pay(ctx context.Context, req services.CheckoutRequest) (services.CheckoutResult, error)
	SavePickupOrder(ctx context.Context, req services.PickupOrderRequest) (services.CheckoutResult, error)
}

// CheckoutHandlers exposes settlement endpoints. Authentication is optional:
// anonymous checkouts are allowed, but a verified user id on the context binds
// the order (and its store credit) to that user.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout checkoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout checkoutService) *CheckoutHandlers {
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
	group := r
	if h.authn != nil {
		group = group.With(h.authn.OptionalFirebaseAuth())
	}
	group.Post("/pay", h.pay)
	group.Post("/pickup", h.savePickup)
}

type payRequest struct {
	Email           string          `json:"email"`
	PaymentMethodID string          `json:"paymentMethodId"`
	Items           []domain.Item   `json:"items"`
	Subtotal        float64         `json:"subtotal"`
	Tax             float64         `json:"tax"`
	Shipping        float64         `json:"shipping"`
	Credit          float64         `json:"credit"`
	Address         *domain.Address `json:"address"`
	RateObjectIDs   []string        `json:"rateObjectIds"`
}

type pickupRequest struct {
	Email    string        `json:"email"`
	Items    []domain.Item `json:"items"`
	Subtotal float64       `json:"subtotal"`
	Tax      float64       `json:"tax"`
	Credit   float64       `json:"credit"`
}

func (h *CheckoutHandlers) pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req payRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.checkout.Pay(ctx, services.CheckoutRequest{
		UserID:          requestctx.UserID(ctx),
		Email:           req.Email,
		PaymentMethodID: req.PaymentMethodID,
		Items:           req.Items,
		Subtotal:        req.Subtotal,
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		Credit:          req.Credit,
		Address:         req.Address,
		RateObjectIDs:   req.RateObjectIDs,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	// Declines come back as data with Approved false; the request itself succeeded.
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *CheckoutHandlers) savePickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req pickupRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.checkout.SavePickupOrder(ctx, services.PickupOrderRequest{
		UserID:   requestctx.UserID(ctx),
		Email:    req.Email,
		Items:    req.Items,
		Subtotal: req.Subtotal,
		Tax:      req.Tax,
		Credit:   req.Credit,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, result)
}

func (h *CheckoutHandlers) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidOrder):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrGateway):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be completed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
