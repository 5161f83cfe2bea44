package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/asg-shop/api/internal/platform/auth"
	"github.com/asg-shop/api/internal/platform/httpx"
	"github.com/asg-shop/api/internal/repositories"
	"github.com/asg-shop/api/internal/services"
)

// pickupCompleter applies a pickup order's deferred stock at handover.
type pickupCompleter interface {
	CompletePickup(ctx context.Context, orderID string) (repositories.InventoryApplyResult, error)
}

// OrderHandlers exposes operator-facing order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	fulfillment pickupCompleter
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, fulfillment pickupCompleter) *OrderHandlers {
	return &OrderHandlers{
		authn:       authn,
		fulfillment: fulfillment,
	}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/{orderID}/pickup/complete", h.completePickup)
}

type pickupCompleteResponse struct {
	OrderID string   `json:"orderId"`
	Applied int      `json:"applied"`
	Skipped []string `json:"skipped,omitempty"`
}

func (h *OrderHandlers) completePickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	result, err := h.fulfillment.CompletePickup(ctx, orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("pickup_failed", "failed to complete pickup", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, pickupCompleteResponse{
		OrderID: orderID,
		Applied: result.Applied,
		Skipped: result.Skipped,
	})
}
