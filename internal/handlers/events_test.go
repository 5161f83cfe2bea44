package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/asg-shop/api/internal/services"
)

type stubOrderConsumer struct {
	handled []string
	err     error
}

func (s *stubOrderConsumer) HandleOrderCreated(_ context.Context, orderID string) error {
	s.handled = append(s.handled, orderID)
	return s.err
}

func newEventsRouter(consumer *stubOrderConsumer) http.Handler {
	r := chi.NewRouter()
	NewEventHandlers(consumer).Routes(r)
	return r
}

func pushBody(t *testing.T, message services.OrderCreatedMessage, attributes map[string]string) *bytes.Reader {
	t.Helper()

	var envelope pushEnvelope
	if message.OrderID != "" || message.EventID != "" {
		data, err := json.Marshal(message)
		if err != nil {
			t.Fatalf("marshal message: %v", err)
		}
		envelope.Message.Data = data
	}
	envelope.Message.Attributes = attributes
	envelope.Message.MessageID = "m-1"
	envelope.Subscription = "projects/test/subscriptions/order-created-push"

	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return bytes.NewReader(body)
}

func TestOrderCreatedPushDecodesMessage(t *testing.T) {
	consumer := &stubOrderConsumer{}

	message := services.OrderCreatedMessage{EventID: "evt-1", OrderID: "2001", UserID: "user-1"}
	req := httptest.NewRequest(http.MethodPost, "/events/order-created", pushBody(t, message, nil))
	rr := httptest.NewRecorder()
	newEventsRouter(consumer).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(consumer.handled) != 1 || consumer.handled[0] != "2001" {
		t.Errorf("unexpected deliveries: %v", consumer.handled)
	}
}

func TestOrderCreatedPushFallsBackToAttributes(t *testing.T) {
	consumer := &stubOrderConsumer{}

	req := httptest.NewRequest(http.MethodPost, "/events/order-created",
		pushBody(t, services.OrderCreatedMessage{}, map[string]string{"orderId": "2002"}))
	rr := httptest.NewRecorder()
	newEventsRouter(consumer).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(consumer.handled) != 1 || consumer.handled[0] != "2002" {
		t.Errorf("unexpected deliveries: %v", consumer.handled)
	}
}

func TestOrderCreatedPushWithoutOrderIDIsDropped(t *testing.T) {
	consumer := &stubOrderConsumer{}

	req := httptest.NewRequest(http.MethodPost, "/events/order-created",
		pushBody(t, services.OrderCreatedMessage{}, nil))
	rr := httptest.NewRecorder()
	newEventsRouter(consumer).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 so the delivery is not retried, got %d", rr.Code)
	}
	if len(consumer.handled) != 0 {
		t.Errorf("consumer must not run, got %v", consumer.handled)
	}
}

func TestOrderCreatedPushFailureNacks(t *testing.T) {
	consumer := &stubOrderConsumer{err: errors.New("firestore unavailable")}

	message := services.OrderCreatedMessage{EventID: "evt-1", OrderID: "2001"}
	req := httptest.NewRequest(http.MethodPost, "/events/order-created", pushBody(t, message, nil))
	rr := httptest.NewRecorder()
	newEventsRouter(consumer).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the delivery is retried, got %d", rr.Code)
	}
}

func TestOrderCreatedPushMalformedEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/events/order-created", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	newEventsRouter(&stubOrderConsumer{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
