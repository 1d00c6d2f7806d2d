package pipeline

import (
	"time"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// Result is the complete output of one pipeline execution.
type Result struct {
	model.Derived
	AnalysisDate time.Time
	ChurnDays    int
	Audit        model.RollupAudit
}

// Counts condenses the result into run bookkeeping numbers.
func (r *Result) Counts(ordersRead, paymentsRead int) model.RunCounts {
	churned := 0
	for _, rec := range r.Recency {
		if rec.IsChurned {
			churned++
		}
	}
	return model.RunCounts{
		OrdersRead:    ordersRead,
		PaymentsRead:  paymentsRead,
		Customers:     len(r.Summaries),
		Churned:       churned,
		RevenueOrders: len(r.Revenue),
		RollupRows:    len(r.Rollups),
		Audit:         r.Audit,
	}
}

// Run executes stages two through five in order over fully loaded
// input relations. Control flows strictly forward; each stage consumes
// the complete output of the previous one. churnDays <= 0 selects the
// default threshold.
func Run(orders []model.Order, payments []model.Payment, churnDays int) (*Result, error) {
	if churnDays <= 0 {
		churnDays = DefaultChurnDays
	}

	summaries := AggregateCustomers(orders)
	analysisDate, err := AnalysisDate(summaries)
	if err != nil {
		return nil, err
	}

	recency := ComputeRecency(summaries, analysisDate, churnDays)
	segments := SegmentCustomers(recency)
	revenue := AggregateRevenue(payments)
	rollups, audit := RollupMonthly(orders, revenue, segments)

	return &Result{
		Derived: model.Derived{
			Summaries: summaries,
			Recency:   recency,
			Segments:  segments,
			Revenue:   revenue,
			Rollups:   rollups,
		},
		AnalysisDate: analysisDate,
		ChurnDays:    churnDays,
		Audit:        audit,
	}, nil
}
