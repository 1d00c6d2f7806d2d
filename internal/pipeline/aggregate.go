// Package pipeline implements the batch transformation stages: customer
// aggregation, recency and churn, segmentation, order revenue, and the
// monthly segment rollup. Every stage is a pure function over complete
// input slices; rerunning on identical input produces identical output.
package pipeline

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// ErrNoCustomers is returned when the aggregation output is empty and
// no analysis date can be derived.
var ErrNoCustomers = eris.New("pipeline: no delivered orders, analysis date undefined")

// DefaultChurnDays is the recency threshold beyond which a customer
// counts as churned.
const DefaultChurnDays = 90

// AggregateCustomers reduces order rows to one CustomerSummary per
// customer. Only delivered orders with a non-nil purchase timestamp
// qualify; customers with no qualifying order are absent from the
// output rather than represented with zeros.
func AggregateCustomers(orders []model.Order) []model.CustomerSummary {
	type acc struct {
		first, last time.Time
		orderIDs    map[string]struct{}
	}
	byCustomer := make(map[string]*acc)

	for _, o := range orders {
		if o.Status != model.StatusDelivered || o.PurchaseTS == nil {
			continue
		}
		ts := o.PurchaseTS.UTC()
		a, ok := byCustomer[o.CustomerID]
		if !ok {
			a = &acc{first: ts, last: ts, orderIDs: make(map[string]struct{})}
			byCustomer[o.CustomerID] = a
		}
		if ts.Before(a.first) {
			a.first = ts
		}
		if ts.After(a.last) {
			a.last = ts
		}
		a.orderIDs[o.ID] = struct{}{}
	}

	summaries := make([]model.CustomerSummary, 0, len(byCustomer))
	for id, a := range byCustomer {
		summaries = append(summaries, model.CustomerSummary{
			CustomerID:   id,
			FirstOrderTS: a.first,
			LastOrderTS:  a.last,
			TotalOrders:  len(a.orderIDs),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CustomerID < summaries[j].CustomerID
	})
	return summaries
}

// AnalysisDate returns the dataset-wide reference "now": the maximum
// last_order_ts across all summaries. An empty input is a degenerate
// dataset and surfaces as ErrNoCustomers.
func AnalysisDate(summaries []model.CustomerSummary) (time.Time, error) {
	if len(summaries) == 0 {
		return time.Time{}, ErrNoCustomers
	}
	maxTS := summaries[0].LastOrderTS
	for _, s := range summaries[1:] {
		if s.LastOrderTS.After(maxTS) {
			maxTS = s.LastOrderTS
		}
	}
	return maxTS, nil
}

// ComputeRecency derives per-customer recency and churn against the
// given analysis date. recency_days is the whole-day calendar distance
// between last_order_ts and analysisDate; it is never negative when
// analysisDate is the dataset maximum.
func ComputeRecency(summaries []model.CustomerSummary, analysisDate time.Time, churnDays int) []model.RecencyRecord {
	records := make([]model.RecencyRecord, 0, len(summaries))
	for _, s := range summaries {
		days := daysBetween(s.LastOrderTS, analysisDate)
		records = append(records, model.RecencyRecord{
			CustomerSummary: s,
			RecencyDays:     days,
			IsChurned:       days > churnDays,
		})
	}
	return records
}

// daysBetween counts calendar days from a to b in UTC. Timestamps on
// the same calendar day are zero days apart regardless of clock time.
func daysBetween(a, b time.Time) int {
	a, b = a.UTC(), b.UTC()
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad) / (24 * time.Hour))
}
