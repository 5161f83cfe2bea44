package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/platform/httpx"
	"github.com/asg-shop/api/internal/shipping"
)

const maxRateRequestBody = 64 * 1024

// rateQuoter aggregates carrier rates for a destination and item set.
type rateQuoter interface {
	Quote(ctx context.Context, address domain.Address, items []domain.Item) (*shipping.Quote, *shipping.ValidationFailure, error)
}

// ShippingHandlers exposes rate quoting to the storefront.
type ShippingHandlers struct {
	rates rateQuoter
}

// NewShippingHandlers constructs shipping handlers.
func NewShippingHandlers(rates rateQuoter) *ShippingHandlers {
	return &ShippingHandlers{rates: rates}
}

// Routes registers shipping endpoints under the provided router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/rates", h.quoteRates)
}

type rateQuoteRequest struct {
	Address domain.Address `json:"address"`
	Items   []domain.Item  `json:"items"`
}

// rateQuoteResponse is the quote envelope. An undeliverable address is a
// successful response with Success false and the carrier's findings attached.
type rateQuoteResponse struct {
	Success           bool                        `json:"success"`
	Quote             *shipping.Quote             `json:"quote,omitempty"`
	AddressValidation *shipping.ValidationFailure `json:"addressValidation,omitempty"`
}

func (h *ShippingHandlers) quoteRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRateRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req rateQuoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	quote, validation, err := h.rates.Quote(ctx, req.Address, req.Items)
	if err != nil {
		h.writeQuoteError(ctx, w, err)
		return
	}
	if validation != nil {
		writeJSONResponse(w, http.StatusOK, rateQuoteResponse{AddressValidation: validation})
		return
	}

	writeJSONResponse(w, http.StatusOK, rateQuoteResponse{Success: true, Quote: quote})
}

func (h *ShippingHandlers) writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shipping.ErrInvalidItem), errors.Is(err, shipping.ErrNothingToShip):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, shipping.ErrCarrierStatus):
		httpx.WriteError(ctx, w, httpx.NewError("carrier_error", "carrier request failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "failed to quote shipping rates", http.StatusInternalServerError))
	}
}
