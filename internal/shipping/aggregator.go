package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/packing"
)

var (
	// ErrInvalidItem indicates a quoted item is missing required fields.
	ErrInvalidItem = errors.New("shipping: invalid item")
	// ErrNothingToShip indicates the request contained no shippable items.
	ErrNothingToShip = errors.New("shipping: nothing to ship")
)

// LoggerFunc records service events with structured fields.
type LoggerFunc func(ctx context.Context, event string, fields map[string]any)

// domesticCountries are the spellings accepted as a US destination after
// normalization (trimmed, spaces and dots removed, uppercased). Only US
// addresses go through carrier verification; international verification
// bills the account.
var domesticCountries = map[string]struct{}{
	"US":                    {},
	"USA":                   {},
	"UNITEDSTATES":          {},
	"UNITEDSTATESOFAMERICA": {},
}

// Quote is the aggregated rate response for a checkout.
type Quote struct {
	AddressTo domain.Address `json:"addressTo"`
	Rates     []domain.Rate  `json:"rates"`
}

// ValidationFailure carries the carrier's findings on an undeliverable
// address. Returned as data so the caller can prompt for corrections.
type ValidationFailure struct {
	Complete bool     `json:"isComplete"`
	Messages []string `json:"messages"`
}

// RateAggregatorDeps bundles collaborators required to construct a RateAggregator.
type RateAggregatorDeps struct {
	Carrier       Carrier
	Boxes         []domain.Box
	ShipFrom      domain.Address
	CustomsSigner string
	Logger        LoggerFunc
}

// RateAggregator packs checkout items into parcels and aggregates carrier
// rates across them.
type RateAggregator struct {
	carrier       Carrier
	boxes         []domain.Box
	shipFrom      domain.Address
	customsSigner string
	logger        LoggerFunc
}

// NewRateAggregator constructs a RateAggregator from its dependencies.
func NewRateAggregator(deps RateAggregatorDeps) (*RateAggregator, error) {
	if deps.Carrier == nil {
		return nil, errors.New("rate aggregator: carrier is required")
	}

	boxes := deps.Boxes
	if len(boxes) == 0 {
		boxes = packing.DefaultBoxes
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RateAggregator{
		carrier:       deps.Carrier,
		boxes:         boxes,
		shipFrom:      deps.ShipFrom,
		customsSigner: deps.CustomsSigner,
		logger:        logger,
	}, nil
}

// Quote validates the items, packs them into parcels, and fetches aggregated
// rates for the destination. Undeliverable domestic addresses come back as a
// ValidationFailure rather than an error.
func (s *RateAggregator) Quote(ctx context.Context, address domain.Address, items []domain.Item) (*Quote, *ValidationFailure, error) {
	if err := validateItems(items); err != nil {
		return nil, nil, err
	}

	parcels, err := packing.Pack(items, s.boxes)
	if err != nil {
		return nil, nil, fmt.Errorf("rate aggregator: pack items: %w", err)
	}
	if len(parcels) == 0 {
		return nil, nil, ErrNothingToShip
	}

	s.logger(ctx, "shipping.quote.packed", map[string]any{
		"items":   len(items),
		"parcels": len(parcels),
	})

	destination := address
	if isDomestic(address.Country) {
		destination.Country = normalizeCountry(address.Country)

		validation, err := s.carrier.ValidateAddress(ctx, destination)
		if err != nil {
			return nil, nil, fmt.Errorf("rate aggregator: validate address: %w", err)
		}
		if !validation.Complete || !validation.Valid {
			s.logger(ctx, "shipping.quote.address_rejected", map[string]any{
				"messages": validation.Messages,
			})
			return nil, &ValidationFailure{Complete: validation.Complete, Messages: validation.Messages}, nil
		}
		destination = validation.Address

		shipments, err := s.createShipments(ctx, parcels, destination, false)
		if err != nil {
			return nil, nil, err
		}
		return &Quote{AddressTo: destination, Rates: reduceRates(shipments)}, nil, nil
	}

	shipments, err := s.createShipments(ctx, parcels, destination, true)
	if err != nil {
		return nil, nil, err
	}
	return &Quote{AddressTo: destination, Rates: reduceRates(shipments)}, nil, nil
}

// PurchaseLabels buys one label per chosen rate id in parallel. An empty id
// list is a service-only order and purchases nothing.
func (s *RateAggregator) PurchaseLabels(ctx context.Context, rateIDs []string, orderID string) ([]LabelTransaction, error) {
	if len(rateIDs) == 0 {
		return nil, nil
	}

	labels := make([]LabelTransaction, len(rateIDs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, rateID := range rateIDs {
		i, rateID := i, rateID
		group.Go(func() error {
			label, err := s.carrier.PurchaseLabel(groupCtx, rateID, orderID)
			if err != nil {
				return fmt.Errorf("rate aggregator: purchase label for rate %s: %w", rateID, err)
			}
			labels[i] = label
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return labels, nil
}

// createShipments quotes every parcel in parallel. Foreign shipments attach a
// customs declaration built from the parcel's items.
func (s *RateAggregator) createShipments(ctx context.Context, parcels []domain.Parcel, destination domain.Address, customs bool) ([]Shipment, error) {
	shipments := make([]Shipment, len(parcels))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, parcel := range parcels {
		i, parcel := i, parcel
		group.Go(func() error {
			req := ShipmentRequest{
				From:   s.shipFrom,
				To:     destination,
				Parcel: wireParcel(parcel),
			}

			if customs {
				declarationID, err := s.carrier.CreateCustomsDeclaration(groupCtx, s.customsDeclaration(parcel))
				if err != nil {
					return fmt.Errorf("rate aggregator: customs declaration: %w", err)
				}
				req.CustomsDeclarationID = declarationID
			}

			shipment, err := s.carrier.CreateShipment(groupCtx, req)
			if err != nil {
				return fmt.Errorf("rate aggregator: create shipment: %w", err)
			}
			shipments[i] = shipment
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return shipments, nil
}

func (s *RateAggregator) customsDeclaration(parcel domain.Parcel) CustomsDeclaration {
	items := make([]CustomsItem, 0, len(parcel.Items))
	for _, item := range parcel.Items {
		var weight float64
		if item.Shipping != nil {
			weight = item.Shipping.Weight
		}
		items = append(items, CustomsItem{
			Description:   item.Description,
			MassUnit:      "kg",
			NetWeight:     weight,
			OriginCountry: "US",
			Quantity:      1,
			ValueAmount:   item.Amount,
			ValueCurrency: "USD",
		})
	}

	return CustomsDeclaration{
		Certify:           true,
		CertifySigner:     s.customsSigner,
		ContentsType:      "MERCHANDISE",
		Items:             items,
		NonDeliveryOption: "RETURN",
	}
}

func wireParcel(parcel domain.Parcel) WireParcel {
	return WireParcel{
		Length:       parcel.Length,
		Width:        parcel.Width,
		Height:       parcel.Height,
		DistanceUnit: "cm",
		Weight:       parcel.Weight,
		MassUnit:     "kg",
	}
}

// validateItems rejects malformed items before any network call.
func validateItems(items []domain.Item) error {
	if len(items) == 0 {
		return ErrNothingToShip
	}
	for _, item := range items {
		switch {
		case item.Amount == 0:
			return fmt.Errorf("%w: %q is missing an amount", ErrInvalidItem, item.DisplayName)
		case strings.TrimSpace(item.DisplayName) == "":
			return fmt.Errorf("%w: item %q is missing a display name", ErrInvalidItem, item.ID)
		case strings.TrimSpace(item.Description) == "":
			return fmt.Errorf("%w: %q is missing a description", ErrInvalidItem, item.DisplayName)
		case item.Shipping == nil:
			return fmt.Errorf("%w: %q is missing shipping dimensions", ErrInvalidItem, item.DisplayName)
		}
	}
	return nil
}

func isDomestic(country string) bool {
	_, ok := domesticCountries[normalizeCountry(country)]
	return ok
}

func normalizeCountry(country string) string {
	cleaned := strings.TrimSpace(country)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	return strings.ToUpper(cleaned)
}

// reduceRates keeps only the service levels offered for every parcel, sums
// their prices, and takes the most conservative delivery estimate.
func reduceRates(shipments []Shipment) []domain.Rate {
	counts := make(map[string]int)
	for _, shipment := range shipments {
		seen := make(map[string]struct{})
		for _, rate := range shipment.Rates {
			if _, dup := seen[rate.ServiceToken]; dup {
				continue
			}
			seen[rate.ServiceToken] = struct{}{}
			counts[rate.ServiceToken]++
		}
	}

	aggregated := make(map[string]*domain.Rate)
	var order []string
	for _, shipment := range shipments {
		for _, rate := range shipment.Rates {
			if counts[rate.ServiceToken] != len(shipments) {
				continue
			}
			agg, ok := aggregated[rate.ServiceToken]
			if !ok {
				agg = &domain.Rate{
					ServiceLevel: rate.ServiceToken,
					DisplayName:  rate.ServiceName,
				}
				aggregated[rate.ServiceToken] = agg
				order = append(order, rate.ServiceToken)
			}
			agg.TotalCents += rate.AmountCents
			if rate.EstimatedDays > agg.EstimatedDays {
				agg.EstimatedDays = rate.EstimatedDays
			}
			agg.RateObjectIDs = append(agg.RateObjectIDs, rate.ObjectID)
		}
	}

	rates := make([]domain.Rate, 0, len(order))
	for _, token := range order {
		rates = append(rates, *aggregated[token])
	}
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].TotalCents < rates[j].TotalCents
	})
	return rates
}
