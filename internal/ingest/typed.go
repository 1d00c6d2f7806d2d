package ingest

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// Stats reports what lenient typing did to one input file.
type Stats struct {
	RowsRead     int `json:"rows_read" yaml:"rows_read"`
	FieldsNulled int `json:"fields_nulled" yaml:"fields_nulled"`
	RowsSkipped  int `json:"rows_skipped" yaml:"rows_skipped"`
}

// timestampLayouts are tried in order when typing a raw timestamp.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// parseTimestamp types a raw timestamp string. Empty or unparseable
// values become nil and bump the nulled counter.
func parseTimestamp(raw string, stats *Stats) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	stats.FieldsNulled++
	return nil
}

// Orders required column names.
const (
	colOrderID     = "order_id"
	colCustomerID  = "customer_id"
	colOrderStatus = "order_status"
	colPurchaseTS  = "order_purchase_timestamp"
	colApprovedTS  = "order_approved_at"
	colDeliveredTS = "order_delivered_customer_date"
	colEstimatedTS = "order_estimated_delivery_date"
)

// ParseOrders types raw order rows. Rows keep flowing even with null
// status or identifiers; exclusion is the job of downstream stages.
func ParseOrders(ctx context.Context, r io.Reader) ([]model.Order, Stats, error) {
	var stats Stats
	header, rows, err := readTable(ctx, r)
	if err != nil {
		return nil, stats, eris.Wrap(err, "ingest: orders")
	}
	idx := columnIndex(header)

	orders := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		stats.RowsRead++
		orders = append(orders, model.Order{
			ID:          field(row, idx, colOrderID),
			CustomerID:  field(row, idx, colCustomerID),
			Status:      field(row, idx, colOrderStatus),
			PurchaseTS:  parseTimestamp(field(row, idx, colPurchaseTS), &stats),
			ApprovedTS:  parseTimestamp(field(row, idx, colApprovedTS), &stats),
			DeliveredTS: parseTimestamp(field(row, idx, colDeliveredTS), &stats),
			EstimatedTS: parseTimestamp(field(row, idx, colEstimatedTS), &stats),
		})
	}
	return orders, stats, nil
}

// Payments required column names.
const (
	colPaymentOrderID = "order_id"
	colPaymentValue   = "payment_value"
)

// ParsePayments types raw payment rows. A row without an order
// identifier or with an unparseable amount cannot join anything and is
// skipped, counted in the stats.
func ParsePayments(ctx context.Context, r io.Reader) ([]model.Payment, Stats, error) {
	var stats Stats
	header, rows, err := readTable(ctx, r)
	if err != nil {
		return nil, stats, eris.Wrap(err, "ingest: payments")
	}
	idx := columnIndex(header)

	payments := make([]model.Payment, 0, len(rows))
	for _, row := range rows {
		stats.RowsRead++
		orderID := field(row, idx, colPaymentOrderID)
		if orderID == "" {
			stats.RowsSkipped++
			continue
		}
		value, err := decimal.NewFromString(field(row, idx, colPaymentValue))
		if err != nil {
			stats.RowsSkipped++
			continue
		}
		payments = append(payments, model.Payment{OrderID: orderID, Value: value})
	}
	return payments, stats, nil
}

// Customers column names.
const (
	colCustID      = "customer_id"
	colCustomerCty = "customer_city"
	colCustomerSt  = "customer_state"
)

// ParseCustomers types customer master rows. Rows without an
// identifier are skipped.
func ParseCustomers(ctx context.Context, r io.Reader) ([]model.Customer, Stats, error) {
	var stats Stats
	header, rows, err := readTable(ctx, r)
	if err != nil {
		return nil, stats, eris.Wrap(err, "ingest: customers")
	}
	idx := columnIndex(header)

	customers := make([]model.Customer, 0, len(rows))
	for _, row := range rows {
		stats.RowsRead++
		id := field(row, idx, colCustID)
		if id == "" {
			stats.RowsSkipped++
			continue
		}
		customers = append(customers, model.Customer{
			ID:    id,
			City:  field(row, idx, colCustomerCty),
			State: field(row, idx, colCustomerSt),
		})
	}
	return customers, stats, nil
}
