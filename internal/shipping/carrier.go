package shipping

import (
	"context"

	"github.com/asg-shop/api/internal/domain"
)

// WireParcel is a parcel in carrier wire format.
type WireParcel struct {
	Length       float64 `json:"length,string"`
	Width        float64 `json:"width,string"`
	Height       float64 `json:"height,string"`
	DistanceUnit string  `json:"distance_unit"`
	Weight       float64 `json:"weight,string"`
	MassUnit     string  `json:"mass_unit"`
}

// CustomsItem describes one line of an international customs declaration.
type CustomsItem struct {
	Description   string  `json:"description"`
	MassUnit      string  `json:"mass_unit"`
	NetWeight     float64 `json:"net_weight,string"`
	OriginCountry string  `json:"origin_country"`
	Quantity      int     `json:"quantity"`
	ValueAmount   float64 `json:"value_amount,string"`
	ValueCurrency string  `json:"value_currency"`
}

// CustomsDeclaration is the customs paperwork attached to a foreign shipment.
type CustomsDeclaration struct {
	Certify           bool          `json:"certify"`
	CertifySigner     string        `json:"certify_signer"`
	ContentsType      string        `json:"contents_type"`
	Items             []CustomsItem `json:"items"`
	NonDeliveryOption string        `json:"non_delivery_option"`
}

// ShipmentRequest asks the carrier to quote a single parcel from the merchant
// origin to the destination. CustomsDeclarationID is set for foreign
// shipments only.
type ShipmentRequest struct {
	From                 domain.Address
	To                   domain.Address
	Parcel               WireParcel
	CustomsDeclarationID string
}

// RawRate is a single carrier rate for one parcel.
type RawRate struct {
	ObjectID      string
	ServiceToken  string
	ServiceName   string
	Provider      string
	AmountCents   int64
	EstimatedDays int
}

// Shipment is the carrier's response to a shipment request.
type Shipment struct {
	ObjectID string
	Rates    []RawRate
}

// AddressValidation is the carrier's verdict on a destination address.
// Messages carry the carrier's human-readable findings for the caller.
type AddressValidation struct {
	Complete bool
	Valid    bool
	Messages []string
	Address  domain.Address
}

// LabelTransaction is a purchased shipping label.
type LabelTransaction struct {
	ObjectID       string `json:"object_id" firestore:"objectId"`
	Status         string `json:"status" firestore:"status"`
	RateID         string `json:"rate" firestore:"rateId"`
	LabelURL       string `json:"label_url" firestore:"labelUrl"`
	TrackingNumber string `json:"tracking_number" firestore:"trackingNumber"`
	TrackingURL    string `json:"tracking_url_provider" firestore:"trackingUrl"`
}

// Carrier abstracts the shipping provider's REST surface.
type Carrier interface {
	// ValidateAddress submits the address for carrier-side verification.
	ValidateAddress(ctx context.Context, address domain.Address) (AddressValidation, error)
	// CreateCustomsDeclaration registers customs paperwork and returns its id.
	CreateCustomsDeclaration(ctx context.Context, declaration CustomsDeclaration) (string, error)
	// CreateShipment quotes a single parcel and returns its per-parcel rates.
	CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error)
	// PurchaseLabel buys the label for a previously quoted rate.
	PurchaseLabel(ctx context.Context, rateID, orderID string) (LabelTransaction, error)
}
