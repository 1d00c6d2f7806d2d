// Package export renders the derived relations for the external
// dashboard tool: one relation per CSV file, or the whole set as an
// XLSX workbook with one sheet per relation.
package export

import (
	"io"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// Relation names one exportable derived relation.
type Relation string

const (
	RelationSummary Relation = "summary"
	RelationRecency Relation = "recency"
	RelationSegment Relation = "segments"
	RelationRevenue Relation = "revenue"
	RelationRollup  Relation = "rollup"
)

// Relations lists every exportable relation name.
func Relations() []Relation {
	return []Relation{RelationSummary, RelationRecency, RelationSegment, RelationRevenue, RelationRollup}
}

const tsLayout = "2006-01-02 15:04:05"

type summaryRow struct {
	CustomerID   string `csv:"customer_id"`
	FirstOrderTS string `csv:"first_order_ts"`
	LastOrderTS  string `csv:"last_order_ts"`
	TotalOrders  int    `csv:"total_orders"`
}

type recencyRow struct {
	CustomerID  string `csv:"customer_id"`
	LastOrderTS string `csv:"last_order_ts"`
	TotalOrders int    `csv:"total_orders"`
	RecencyDays int    `csv:"recency_days"`
	IsChurned   bool   `csv:"is_churned"`
}

type segmentRow struct {
	CustomerID  string `csv:"customer_id"`
	RecencyDays int    `csv:"recency_days"`
	TotalOrders int    `csv:"total_orders"`
	IsChurned   bool   `csv:"is_churned"`
	Segment     string `csv:"rf_segment"`
	Reason      string `csv:"segment_reason"`
}

type revenueRow struct {
	OrderID           string `csv:"order_id"`
	TotalPaymentValue string `csv:"total_payment_value"`
}

type rollupRow struct {
	Year            int    `csv:"year"`
	Month           int    `csv:"month"`
	Segment         string `csv:"rf_segment"`
	ActiveCustomers int    `csv:"active_customers"`
	TotalOrders     int    `csv:"total_orders"`
	TotalRevenue    string `csv:"total_revenue"`
}

func formatTS(ts time.Time) string { return ts.UTC().Format(tsLayout) }

func summaryRows(d model.Derived) []summaryRow {
	rows := make([]summaryRow, 0, len(d.Summaries))
	for _, s := range d.Summaries {
		rows = append(rows, summaryRow{
			CustomerID:   s.CustomerID,
			FirstOrderTS: formatTS(s.FirstOrderTS),
			LastOrderTS:  formatTS(s.LastOrderTS),
			TotalOrders:  s.TotalOrders,
		})
	}
	return rows
}

func recencyRows(d model.Derived) []recencyRow {
	rows := make([]recencyRow, 0, len(d.Recency))
	for _, r := range d.Recency {
		rows = append(rows, recencyRow{
			CustomerID:  r.CustomerID,
			LastOrderTS: formatTS(r.LastOrderTS),
			TotalOrders: r.TotalOrders,
			RecencyDays: r.RecencyDays,
			IsChurned:   r.IsChurned,
		})
	}
	return rows
}

func segmentRows(d model.Derived) []segmentRow {
	rows := make([]segmentRow, 0, len(d.Segments))
	for _, s := range d.Segments {
		rows = append(rows, segmentRow{
			CustomerID:  s.CustomerID,
			RecencyDays: s.RecencyDays,
			TotalOrders: s.TotalOrders,
			IsChurned:   s.IsChurned,
			Segment:     string(s.Segment),
			Reason:      s.Reason,
		})
	}
	return rows
}

func revenueRows(d model.Derived) []revenueRow {
	rows := make([]revenueRow, 0, len(d.Revenue))
	for _, r := range d.Revenue {
		rows = append(rows, revenueRow{
			OrderID:           r.OrderID,
			TotalPaymentValue: r.TotalPaymentValue.StringFixed(2),
		})
	}
	return rows
}

func rollupRows(d model.Derived) []rollupRow {
	rows := make([]rollupRow, 0, len(d.Rollups))
	for _, r := range d.Rollups {
		rows = append(rows, rollupRow{
			Year:            r.Year,
			Month:           int(r.Month),
			Segment:         string(r.Segment),
			ActiveCustomers: r.ActiveCustomers,
			TotalOrders:     r.TotalOrders,
			TotalRevenue:    r.TotalRevenue.StringFixed(2),
		})
	}
	return rows
}

// WriteCSV writes one relation as CSV with a header row.
func WriteCSV(w io.Writer, rel Relation, d model.Derived) error {
	var (
		data []byte
		err  error
	)
	switch rel {
	case RelationSummary:
		data, err = csvutil.Marshal(summaryRows(d))
	case RelationRecency:
		data, err = csvutil.Marshal(recencyRows(d))
	case RelationSegment:
		data, err = csvutil.Marshal(segmentRows(d))
	case RelationRevenue:
		data, err = csvutil.Marshal(revenueRows(d))
	case RelationRollup:
		data, err = csvutil.Marshal(rollupRows(d))
	default:
		return eris.Errorf("export: unknown relation %q", rel)
	}
	if err != nil {
		return eris.Wrapf(err, "export: marshal %s", rel)
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrapf(err, "export: write %s", rel)
	}
	return nil
}
