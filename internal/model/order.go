// Package model defines the input rows and derived relations of the
// analytics pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusDelivered is the only order status that counts toward customer
// behavior aggregation.
const StatusDelivered = "delivered"

// Order is one typed order row. Timestamp fields are nil when the raw
// value was missing or unparseable.
type Order struct {
	ID          string     `json:"order_id"`
	CustomerID  string     `json:"customer_id"`
	Status      string     `json:"order_status"`
	PurchaseTS  *time.Time `json:"purchase_ts"`
	ApprovedTS  *time.Time `json:"approved_ts,omitempty"`
	DeliveredTS *time.Time `json:"delivered_ts,omitempty"`
	EstimatedTS *time.Time `json:"estimated_ts,omitempty"`
}

// Payment is one raw payment row. An order paid in installments has
// several payment rows.
type Payment struct {
	OrderID string          `json:"order_id"`
	Value   decimal.Decimal `json:"payment_value"`
}

// Customer is one customer master row.
type Customer struct {
	ID    string `json:"customer_id"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}
