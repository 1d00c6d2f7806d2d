package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerSummary is one row of the customer_summary relation: the
// behavioral reduction of all delivered orders for one customer.
type CustomerSummary struct {
	CustomerID   string    `json:"customer_id"`
	FirstOrderTS time.Time `json:"first_order_ts"`
	LastOrderTS  time.Time `json:"last_order_ts"`
	TotalOrders  int       `json:"total_orders"`
}

// RecencyRecord extends CustomerSummary with days since last activity
// relative to the run's analysis date.
type RecencyRecord struct {
	CustomerSummary
	RecencyDays int  `json:"recency_days"`
	IsChurned   bool `json:"is_churned"`
}

// Segment is a recency/frequency customer label. The set is closed and
// every customer receives exactly one.
type Segment string

const (
	SegmentChurned         Segment = "Churned"
	SegmentLoyal           Segment = "Loyal / High Value"
	SegmentReturning       Segment = "Returning"
	SegmentNew             Segment = "New"
	SegmentAtRiskReturning Segment = "At Risk (Returning)"
	SegmentAtRiskNew       Segment = "At Risk (New)"
	SegmentActiveOther     Segment = "Active (Other)"
)

// Segments lists every label in rule order.
var Segments = []Segment{
	SegmentChurned,
	SegmentLoyal,
	SegmentReturning,
	SegmentNew,
	SegmentAtRiskReturning,
	SegmentAtRiskNew,
	SegmentActiveOther,
}

// SegmentRecord extends RecencyRecord with the assigned label and an
// audit string explaining it.
type SegmentRecord struct {
	RecencyRecord
	Segment Segment `json:"rf_segment"`
	Reason  string  `json:"segment_reason"`
}

// OrderRevenue is one row of the order_revenue relation: all payment
// rows of an order summed into a single figure.
type OrderRevenue struct {
	OrderID           string          `json:"order_id"`
	TotalPaymentValue decimal.Decimal `json:"total_payment_value"`
}

// MonthlyRollup is one row of the monthly_segment_rollup relation,
// keyed by (year, month, segment).
type MonthlyRollup struct {
	Year            int             `json:"year"`
	Month           time.Month      `json:"month"`
	Segment         Segment         `json:"rf_segment"`
	ActiveCustomers int             `json:"active_customers"`
	TotalOrders     int             `json:"total_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
}

// Derived bundles the five relations a pipeline run materializes. The
// store replaces all of them atomically.
type Derived struct {
	Summaries []CustomerSummary
	Recency   []RecencyRecord
	Segments  []SegmentRecord
	Revenue   []OrderRevenue
	Rollups   []MonthlyRollup
}

// RollupAudit counts orders the monthly rollup excluded because an
// inner join found no match. The rollup itself keeps inner-join
// semantics; these counts exist so the gap is visible instead of
// silent.
type RollupAudit struct {
	OrdersNoTimestamp int `json:"orders_no_timestamp" yaml:"orders_no_timestamp"`
	OrdersNoRevenue   int `json:"orders_no_revenue" yaml:"orders_no_revenue"`
	OrdersNoSegment   int `json:"orders_no_segment" yaml:"orders_no_segment"`
}
