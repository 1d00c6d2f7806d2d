package pipeline

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// AggregateRevenue sums all payment rows of each order into a single
// revenue figure, so an order paid in several installments is counted
// once. Sums keep exact decimal precision.
func AggregateRevenue(payments []model.Payment) []model.OrderRevenue {
	totals := make(map[string]decimal.Decimal)
	for _, p := range payments {
		totals[p.OrderID] = totals[p.OrderID].Add(p.Value)
	}

	out := make([]model.OrderRevenue, 0, len(totals))
	for orderID, total := range totals {
		out = append(out, model.OrderRevenue{
			OrderID:           orderID,
			TotalPaymentValue: total,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// RollupMonthly joins typed orders to their revenue and their
// customer's segment, then aggregates by (year, month of purchase,
// segment). The output keeps inner-join semantics: an order lacking a
// purchase timestamp, a revenue row, or a segment contributes nothing,
// and the audit reports how many were dropped for each reason.
func RollupMonthly(orders []model.Order, revenue []model.OrderRevenue, segments []model.SegmentRecord) ([]model.MonthlyRollup, model.RollupAudit) {
	revenueByOrder := make(map[string]decimal.Decimal, len(revenue))
	for _, r := range revenue {
		revenueByOrder[r.OrderID] = r.TotalPaymentValue
	}
	segmentByCustomer := make(map[string]model.Segment, len(segments))
	for _, s := range segments {
		segmentByCustomer[s.CustomerID] = s.Segment
	}

	type key struct {
		year    int
		month   time.Month
		segment model.Segment
	}
	type bucket struct {
		customers map[string]struct{}
		orders    int
		revenue   decimal.Decimal
	}

	var audit model.RollupAudit
	buckets := make(map[key]*bucket)

	for _, o := range orders {
		if o.PurchaseTS == nil {
			audit.OrdersNoTimestamp++
			continue
		}
		rev, ok := revenueByOrder[o.ID]
		if !ok {
			audit.OrdersNoRevenue++
			continue
		}
		segment, ok := segmentByCustomer[o.CustomerID]
		if !ok {
			audit.OrdersNoSegment++
			continue
		}

		ts := o.PurchaseTS.UTC()
		k := key{year: ts.Year(), month: ts.Month(), segment: segment}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{customers: make(map[string]struct{})}
			buckets[k] = b
		}
		b.customers[o.CustomerID] = struct{}{}
		b.orders++
		b.revenue = b.revenue.Add(rev)
	}

	rollups := make([]model.MonthlyRollup, 0, len(buckets))
	for k, b := range buckets {
		rollups = append(rollups, model.MonthlyRollup{
			Year:            k.year,
			Month:           k.month,
			Segment:         k.segment,
			ActiveCustomers: len(b.customers),
			TotalOrders:     b.orders,
			TotalRevenue:    b.revenue,
		})
	}
	sort.Slice(rollups, func(i, j int) bool {
		a, b := rollups[i], rollups[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Segment < b.Segment
	})
	return rollups, audit
}
