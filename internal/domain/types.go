package domain

import "time"

// ShippingInfo carries the physical dimensions of a single item.
// Lengths are centimetres, weight is kilograms.
type ShippingInfo struct {
	Length float64 `firestore:"length" json:"length"`
	Width  float64 `firestore:"width" json:"width"`
	Height float64 `firestore:"height" json:"height"`
	Weight float64 `firestore:"weight" json:"weight"`
}

// InventoryAdjustment points at a stock counter and the amount to subtract
// from it when the order ships. FieldPath uses dot notation and may contain
// segments with spaces or punctuation (e.g. "foil.Near Mint.qty").
type InventoryAdjustment struct {
	Collection string `firestore:"collection" json:"collection"`
	DocumentID string `firestore:"documentId" json:"documentId"`
	FieldPath  string `firestore:"fieldPath" json:"fieldPath"`
	Decrement  int64  `firestore:"decrementValue" json:"decrementValue"`
}

// Item is a single purchasable line in a checkout request. Amount is in
// currency units with two decimals. Shipping is nil for digital goods;
// InventoryAdjust is nil for items without tracked stock.
type Item struct {
	ID              string               `firestore:"id" json:"id"`
	Amount          float64              `firestore:"amount" json:"amount"`
	DisplayName     string               `firestore:"displayName" json:"displayName"`
	Description     string               `firestore:"description" json:"description"`
	Shipping        *ShippingInfo        `firestore:"shipping,omitempty" json:"shipping,omitempty"`
	InventoryAdjust *InventoryAdjustment `firestore:"inventoryAdjust,omitempty" json:"inventoryAdjust,omitempty"`
}

// Address is a shipping destination in carrier wire format.
type Address struct {
	Name    string `firestore:"name" json:"name"`
	Street1 string `firestore:"street1" json:"street1"`
	Street2 string `firestore:"street2,omitempty" json:"street2,omitempty"`
	City    string `firestore:"city" json:"city"`
	State   string `firestore:"state" json:"state"`
	Zip     string `firestore:"zip" json:"zip"`
	Country string `firestore:"country" json:"country"`
	Phone   string `firestore:"phone,omitempty" json:"phone,omitempty"`
	Email   string `firestore:"email,omitempty" json:"email,omitempty"`
}

// Box is a packable container from the merchant's box catalog.
// Dimensions are centimetres; Weight is the capacity figure used by the
// packing math, in kilograms.
type Box struct {
	Name   string
	Length float64
	Width  float64
	Height float64
	Weight float64
}

// Parcel is the result of packing: either a packed catalog box holding one or
// more items, or a single oversized item shipped as its own parcel.
// Dimensions are centimetres, weight kilograms.
type Parcel struct {
	Length    float64
	Width     float64
	Height    float64
	Weight    float64
	Oversized bool
	Items     []Item
}

// Rate is an aggregated shipping option across every parcel of a checkout.
// TotalCents is the summed price of the service level across parcels;
// EstimatedDays is the maximum across parcels; RateObjectIDs collects the
// carrier's per-parcel rate identifiers needed for label purchase.
type Rate struct {
	ServiceLevel  string   `json:"serviceLevel"`
	DisplayName   string   `json:"displayName"`
	TotalCents    int64    `json:"totalCents"`
	EstimatedDays int      `json:"estimatedDays"`
	RateObjectIDs []string `json:"rateObjectIds"`
}

// Order is the persisted record of a settled checkout. Monetary fields are
// integer cents. Exactly one of InventoryAdjustments or
// PickupInventoryAdjustments is populated: the pickup path defers stock
// changes until physical handover.
type Order struct {
	OrderID                    string                `firestore:"orderId" json:"orderId"`
	UserID                     string                `firestore:"userId,omitempty" json:"userId,omitempty"`
	Email                      string                `firestore:"email,omitempty" json:"email,omitempty"`
	Items                      []Item                `firestore:"items" json:"items"`
	Subtotal                   int64                 `firestore:"subtotal" json:"subtotal"`
	Tax                        int64                 `firestore:"tax" json:"tax"`
	ShippingCost               int64                 `firestore:"shippingCost" json:"shippingCost"`
	Credit                     int64                 `firestore:"credit" json:"credit"`
	Total                      int64                 `firestore:"total" json:"total"`
	Address                    *Address              `firestore:"address,omitempty" json:"address,omitempty"`
	RateObjectIDs              []string              `firestore:"rateObjectIds,omitempty" json:"rateObjectIds,omitempty"`
	InventoryAdjustments       []InventoryAdjustment `firestore:"inventoryAdjustments,omitempty" json:"inventoryAdjustments,omitempty"`
	PickupInventoryAdjustments []InventoryAdjustment `firestore:"pickupInventoryAdjustments,omitempty" json:"pickupInventoryAdjustments,omitempty"`
	TransactionRef             string                `firestore:"transactionRef,omitempty" json:"transactionRef,omitempty"`
	PaidInFullWithCredit       bool                  `firestore:"paidInFullWithCredit,omitempty" json:"paidInFullWithCredit,omitempty"`
	Pickup                     bool                  `firestore:"pickup,omitempty" json:"pickup,omitempty"`
	CreatedAt                  time.Time             `firestore:"createdAt" json:"createdAt"`
}

// Anonymous reports whether the order was placed without a signed-in user.
func (o Order) Anonymous() bool {
	return o.UserID == ""
}

// Adjustments returns whichever adjustment list the order carries.
func (o Order) Adjustments() []InventoryAdjustment {
	if len(o.InventoryAdjustments) > 0 {
		return o.InventoryAdjustments
	}
	return o.PickupInventoryAdjustments
}
