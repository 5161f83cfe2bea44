package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asg-shop/api/internal/domain"
)

const defaultShippoTimeout = 20 * time.Second

// ErrCarrierStatus wraps non-2xx carrier responses.
var ErrCarrierStatus = errors.New("shipping: carrier request failed")

// ShippoClient talks to the Shippo REST API.
type ShippoClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// ShippoOption customises ShippoClient construction.
type ShippoOption func(*ShippoClient)

// WithHTTPClient overrides the HTTP client (primarily for tests).
func WithHTTPClient(client *http.Client) ShippoOption {
	return func(c *ShippoClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) ShippoOption {
	return func(c *ShippoClient) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewShippoClient constructs a carrier client authenticated with the given token.
func NewShippoClient(apiKey string, opts ...ShippoOption) (*ShippoClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("shipping: shippo api key is required")
	}

	c := &ShippoClient{
		apiKey:  apiKey,
		baseURL: "https://api.goshippo.com",
		client:  &http.Client{Timeout: defaultShippoTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type shippoAddress struct {
	Name     string `json:"name,omitempty"`
	Street1  string `json:"street1"`
	Street2  string `json:"street2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Country  string `json:"country"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Validate bool   `json:"validate,omitempty"`
}

func wireAddress(a domain.Address, validate bool) shippoAddress {
	return shippoAddress{
		Name:     a.Name,
		Street1:  a.Street1,
		Street2:  a.Street2,
		City:     a.City,
		State:    a.State,
		Zip:      a.Zip,
		Country:  a.Country,
		Phone:    a.Phone,
		Email:    a.Email,
		Validate: validate,
	}
}

type shippoValidationResults struct {
	IsValid  bool `json:"is_valid"`
	Messages []struct {
		Text string `json:"text"`
	} `json:"messages"`
}

type shippoAddressResponse struct {
	shippoAddress
	ObjectID          string                  `json:"object_id"`
	IsComplete        bool                    `json:"is_complete"`
	ValidationResults shippoValidationResults `json:"validation_results"`
}

type shippoRate struct {
	ObjectID      string `json:"object_id"`
	Amount        string `json:"amount"`
	Provider      string `json:"provider"`
	EstimatedDays int    `json:"estimated_days"`
	ServiceLevel  struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	} `json:"servicelevel"`
}

type shippoShipmentResponse struct {
	ObjectID string       `json:"object_id"`
	Status   string       `json:"status"`
	Rates    []shippoRate `json:"rates"`
}

type shippoCustomsResponse struct {
	ObjectID string `json:"object_id"`
}

// ValidateAddress submits the destination for carrier-side verification.
func (c *ShippoClient) ValidateAddress(ctx context.Context, address domain.Address) (AddressValidation, error) {
	var resp shippoAddressResponse
	if err := c.post(ctx, "/addresses/", wireAddress(address, true), &resp); err != nil {
		return AddressValidation{}, err
	}

	messages := make([]string, 0, len(resp.ValidationResults.Messages))
	for _, msg := range resp.ValidationResults.Messages {
		if text := strings.TrimSpace(msg.Text); text != "" {
			messages = append(messages, text)
		}
	}

	validated := address
	validated.Street1 = resp.Street1
	validated.Street2 = resp.Street2
	validated.City = resp.City
	validated.State = resp.State
	validated.Zip = resp.Zip
	validated.Country = resp.Country

	return AddressValidation{
		Complete: resp.IsComplete,
		Valid:    resp.ValidationResults.IsValid,
		Messages: messages,
		Address:  validated,
	}, nil
}

// CreateCustomsDeclaration registers the declaration and returns its object id.
func (c *ShippoClient) CreateCustomsDeclaration(ctx context.Context, declaration CustomsDeclaration) (string, error) {
	var resp shippoCustomsResponse
	if err := c.post(ctx, "/customs/declarations/", declaration, &resp); err != nil {
		return "", err
	}
	if resp.ObjectID == "" {
		return "", errors.New("shipping: customs declaration response missing object id")
	}
	return resp.ObjectID, nil
}

// CreateShipment quotes a single parcel synchronously.
func (c *ShippoClient) CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	payload := map[string]any{
		"address_from": wireAddress(req.From, false),
		"address_to":   wireAddress(req.To, false),
		"async":        false,
		"parcels":      []WireParcel{req.Parcel},
	}
	if req.CustomsDeclarationID != "" {
		payload["customs_declaration"] = req.CustomsDeclarationID
	}

	var resp shippoShipmentResponse
	if err := c.post(ctx, "/shipments/", payload, &resp); err != nil {
		return Shipment{}, err
	}

	rates := make([]RawRate, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		rates = append(rates, RawRate{
			ObjectID:      r.ObjectID,
			ServiceToken:  r.ServiceLevel.Token,
			ServiceName:   r.ServiceLevel.Name,
			Provider:      r.Provider,
			AmountCents:   amountCents(r.Amount),
			EstimatedDays: r.EstimatedDays,
		})
	}

	return Shipment{ObjectID: resp.ObjectID, Rates: rates}, nil
}

// PurchaseLabel buys the label for a quoted rate, tagging it with the order id.
func (c *ShippoClient) PurchaseLabel(ctx context.Context, rateID, orderID string) (LabelTransaction, error) {
	payload := map[string]any{
		"rate":     rateID,
		"metadata": orderID,
		"async":    false,
	}

	var resp LabelTransaction
	if err := c.post(ctx, "/transactions/", payload, &resp); err != nil {
		return LabelTransaction{}, err
	}
	return resp, nil
}

func (c *ShippoClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("shipping: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("shipping: build request: %w", err)
	}
	req.Header.Set("Authorization", "ShippoToken "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("shipping: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrCarrierStatus, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("shipping: decode %s response: %w", path, err)
	}
	return nil
}

// amountCents parses a carrier price string ("12.34") into integer cents.
func amountCents(amount string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0
	}
	return domain.Cents(f)
}
