package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/asg-shop/api/internal/platform/httpx"
	"github.com/asg-shop/api/internal/services"
)

const maxPushRequestBody = 64 * 1024

// orderEventConsumer runs the asynchronous side effects of a created order.
type orderEventConsumer interface {
	HandleOrderCreated(ctx context.Context, orderID string) error
}

// EventHandlers receives Pub/Sub push deliveries on the internal surface.
// The route is expected to sit behind push-subscription authentication
// (OIDC token middleware) configured on the internal group.
type EventHandlers struct {
	fulfillment orderEventConsumer
}

// NewEventHandlers constructs event handlers.
func NewEventHandlers(fulfillment orderEventConsumer) *EventHandlers {
	return &EventHandlers{fulfillment: fulfillment}
}

// Routes registers event endpoints under the provided router.
func (h *EventHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/events/order-created", h.orderCreated)
}

// pushEnvelope is the Pub/Sub push delivery format. Data arrives base64
// encoded and decodes into the published OrderCreatedMessage.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func (h *EventHandlers) orderCreated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("events_unavailable", "event consumer unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPushRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "push envelope must be valid JSON", http.StatusBadRequest))
		return
	}

	orderID := extractOrderID(envelope)
	if orderID == "" {
		// Malformed events can never succeed; acknowledging with 400 keeps
		// Pub/Sub from redelivering them forever.
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event carries no order id", http.StatusBadRequest))
		return
	}

	if err := h.fulfillment.HandleOrderCreated(ctx, orderID); err != nil {
		// Non-2xx nacks the delivery so Pub/Sub retries it.
		httpx.WriteError(ctx, w, httpx.NewError("event_failed", "order event processing failed", http.StatusInternalServerError))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func extractOrderID(envelope pushEnvelope) string {
	if len(envelope.Message.Data) > 0 {
		var message services.OrderCreatedMessage
		if err := json.Unmarshal(envelope.Message.Data, &message); err == nil {
			if id := strings.TrimSpace(message.OrderID); id != "" {
				return id
			}
		}
	}
	return strings.TrimSpace(envelope.Message.Attributes["orderId"])
}
