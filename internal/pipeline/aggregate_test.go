package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commerce-analytics/internal/model"
)

func ts(day int, hour int) *time.Time {
	t := time.Date(2018, time.March, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func deliveredOrder(id, customer string, purchase *time.Time) model.Order {
	return model.Order{ID: id, CustomerID: customer, Status: model.StatusDelivered, PurchaseTS: purchase}
}

func TestAggregateCustomers_DeliveredOnly(t *testing.T) {
	orders := []model.Order{
		deliveredOrder("o1", "alice", ts(1, 10)),
		deliveredOrder("o2", "alice", ts(5, 9)),
		{ID: "o3", CustomerID: "alice", Status: "canceled", PurchaseTS: ts(9, 12)},
		{ID: "o4", CustomerID: "bob", Status: "shipped", PurchaseTS: ts(2, 8)},
		deliveredOrder("o5", "carol", nil), // null purchase ts never qualifies
	}

	summaries := AggregateCustomers(orders)

	// bob has no delivered order and carol's only order has no
	// timestamp: neither appears at all.
	require.Len(t, summaries, 1)
	sum := summaries[0]
	assert.Equal(t, "alice", sum.CustomerID)
	assert.Equal(t, *ts(1, 10), sum.FirstOrderTS)
	assert.Equal(t, *ts(5, 9), sum.LastOrderTS)
	assert.Equal(t, 2, sum.TotalOrders)
}

func TestAggregateCustomers_DistinctOrderCount(t *testing.T) {
	// Duplicate order rows must not inflate the count.
	orders := []model.Order{
		deliveredOrder("o1", "alice", ts(1, 10)),
		deliveredOrder("o1", "alice", ts(1, 10)),
		deliveredOrder("o2", "alice", ts(3, 10)),
	}

	summaries := AggregateCustomers(orders)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].TotalOrders)
}

func TestAggregateCustomers_Invariants(t *testing.T) {
	orders := []model.Order{
		deliveredOrder("o1", "alice", ts(20, 0)),
		deliveredOrder("o2", "alice", ts(3, 0)),
		deliveredOrder("o3", "bob", ts(12, 15)),
	}

	for _, sum := range AggregateCustomers(orders) {
		assert.False(t, sum.FirstOrderTS.After(sum.LastOrderTS), "first <= last for %s", sum.CustomerID)
		assert.GreaterOrEqual(t, sum.TotalOrders, 1)
	}
}

func TestAggregateCustomers_SortedAndDeterministic(t *testing.T) {
	orders := []model.Order{
		deliveredOrder("o1", "zed", ts(1, 0)),
		deliveredOrder("o2", "alice", ts(2, 0)),
		deliveredOrder("o3", "mike", ts(3, 0)),
	}

	first := AggregateCustomers(orders)
	second := AggregateCustomers(orders)

	require.Len(t, first, 3)
	assert.Equal(t, "alice", first[0].CustomerID)
	assert.Equal(t, "mike", first[1].CustomerID)
	assert.Equal(t, "zed", first[2].CustomerID)
	assert.Equal(t, first, second)
}

func TestAnalysisDate_Max(t *testing.T) {
	summaries := []model.CustomerSummary{
		{CustomerID: "alice", LastOrderTS: *ts(5, 0)},
		{CustomerID: "bob", LastOrderTS: *ts(25, 0)},
		{CustomerID: "carol", LastOrderTS: *ts(14, 0)},
	}

	date, err := AnalysisDate(summaries)
	require.NoError(t, err)
	assert.Equal(t, *ts(25, 0), date)
}

func TestAnalysisDate_EmptyInput(t *testing.T) {
	_, err := AnalysisDate(nil)
	require.ErrorIs(t, err, ErrNoCustomers)
}

func TestComputeRecency_NonNegative(t *testing.T) {
	summaries := []model.CustomerSummary{
		{CustomerID: "alice", LastOrderTS: *ts(1, 23), TotalOrders: 1},
		{CustomerID: "bob", LastOrderTS: *ts(25, 0), TotalOrders: 4},
	}
	analysisDate, err := AnalysisDate(summaries)
	require.NoError(t, err)

	for _, rec := range ComputeRecency(summaries, analysisDate, DefaultChurnDays) {
		assert.GreaterOrEqual(t, rec.RecencyDays, 0, "customer %s", rec.CustomerID)
	}
}

func TestComputeRecency_ChurnBoundary(t *testing.T) {
	analysisDate := time.Date(2018, time.December, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		daysAgo int
		churned bool
	}{
		{"well inside", 10, false},
		{"at threshold", 90, false}, // strictly greater than only
		{"one past threshold", 91, true},
		{"far past", 200, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			last := analysisDate.AddDate(0, 0, -tc.daysAgo)
			records := ComputeRecency([]model.CustomerSummary{
				{CustomerID: "c", LastOrderTS: last, TotalOrders: 1},
			}, analysisDate, DefaultChurnDays)
			require.Len(t, records, 1)
			assert.Equal(t, tc.daysAgo, records[0].RecencyDays)
			assert.Equal(t, tc.churned, records[0].IsChurned)
		})
	}
}

func TestComputeRecency_CustomThreshold(t *testing.T) {
	analysisDate := time.Date(2018, time.December, 31, 0, 0, 0, 0, time.UTC)
	last := analysisDate.AddDate(0, 0, -45)

	records := ComputeRecency([]model.CustomerSummary{
		{CustomerID: "c", LastOrderTS: last, TotalOrders: 1},
	}, analysisDate, 30)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsChurned)
}

func TestDaysBetween_SameCalendarDay(t *testing.T) {
	a := time.Date(2018, time.March, 5, 1, 0, 0, 0, time.UTC)
	b := time.Date(2018, time.March, 5, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, daysBetween(a, b))

	next := time.Date(2018, time.March, 6, 0, 10, 0, 0, time.UTC)
	assert.Equal(t, 1, daysBetween(a, next))
}
