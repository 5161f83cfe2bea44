package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/asg-shop/api/internal/repositories"
	"github.com/asg-shop/api/internal/services"
)

type stubPickupCompleter struct {
	result    repositories.InventoryApplyResult
	err       error
	completed []string
}

func (s *stubPickupCompleter) CompletePickup(_ context.Context, orderID string) (repositories.InventoryApplyResult, error) {
	s.completed = append(s.completed, orderID)
	return s.result, s.err
}

func newOrdersRouter(completer *stubPickupCompleter) http.Handler {
	r := chi.NewRouter()
	NewOrderHandlers(nil, completer).Routes(r)
	return r
}

func TestCompletePickupEndpoint(t *testing.T) {
	completer := &stubPickupCompleter{result: repositories.InventoryApplyResult{Applied: 2}}

	req := httptest.NewRequest(http.MethodPost, "/3001/pickup/complete", nil)
	rr := httptest.NewRecorder()
	newOrdersRouter(completer).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp pickupCompleteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.OrderID != "3001" || resp.Applied != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(completer.completed) != 1 || completer.completed[0] != "3001" {
		t.Errorf("unexpected completions: %v", completer.completed)
	}
}

func TestCompletePickupEndpointMissingOrder(t *testing.T) {
	completer := &stubPickupCompleter{err: services.ErrOrderNotFound}

	req := httptest.NewRequest(http.MethodPost, "/9999/pickup/complete", nil)
	rr := httptest.NewRecorder()
	newOrdersRouter(completer).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCompletePickupEndpointFailure(t *testing.T) {
	completer := &stubPickupCompleter{err: errors.New("firestore unavailable")}

	req := httptest.NewRequest(http.MethodPost, "/3001/pickup/complete", nil)
	rr := httptest.NewRecorder()
	newOrdersRouter(completer).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
