package export

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/commerce-analytics/internal/model"
)

func exportFixture() model.Derived {
	summary := model.CustomerSummary{
		CustomerID:   "alice",
		FirstOrderTS: time.Date(2018, time.January, 5, 12, 30, 0, 0, time.UTC),
		LastOrderTS:  time.Date(2018, time.March, 20, 9, 0, 0, 0, time.UTC),
		TotalOrders:  2,
	}
	recency := model.RecencyRecord{CustomerSummary: summary, RecencyDays: 5}
	return model.Derived{
		Summaries: []model.CustomerSummary{summary},
		Recency:   []model.RecencyRecord{recency},
		Segments: []model.SegmentRecord{{
			RecencyRecord: recency,
			Segment:       model.SegmentReturning,
			Reason:        "recency_days=5 total_orders=2 churned=false",
		}},
		Revenue: []model.OrderRevenue{{
			OrderID:           "o1",
			TotalPaymentValue: decimal.RequireFromString("42.5"),
		}},
		Rollups: []model.MonthlyRollup{{
			Year: 2018, Month: time.March, Segment: model.SegmentReturning,
			ActiveCustomers: 1, TotalOrders: 2,
			TotalRevenue: decimal.RequireFromString("42.5"),
		}},
	}
}

func TestWriteCSV_Segments(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, RelationSegment, exportFixture()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "customer_id,recency_days,total_orders,is_churned,rf_segment,segment_reason", lines[0])
	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[1], "Returning")
}

func TestWriteCSV_RevenueFixedPrecision(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, RelationRevenue, exportFixture()))

	// Monetary output always carries two fraction digits.
	assert.Contains(t, buf.String(), "o1,42.50")
}

func TestWriteCSV_Summary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, RelationSummary, exportFixture()))

	assert.Contains(t, buf.String(), "2018-01-05 12:30:00")
	assert.Contains(t, buf.String(), "2018-03-20 09:00:00")
}

func TestWriteCSV_UnknownRelation(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, Relation("bogus"), exportFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown relation")
}

func TestWriteCSV_RollupHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, RelationRollup, exportFixture()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "year,month,rf_segment,active_customers,total_orders,total_revenue", lines[0])
	assert.Equal(t, "2018,3,Returning,1,2,42.50", lines[1])
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteWorkbook(path, exportFixture()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 5)

	names := make([]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		names = append(names, sheet.Name)
		require.NotEmpty(t, sheet.Rows, "sheet %s has a header row", sheet.Name)
	}
	assert.Equal(t, []string{
		"customer_summary", "customer_recency", "customer_segments",
		"order_revenue", "monthly_segment_rollup",
	}, names)

	segSheet := f.Sheets[2]
	require.Len(t, segSheet.Rows, 2)
	assert.Equal(t, "alice", segSheet.Rows[1].Cells[0].Value)
	assert.Equal(t, "Returning", segSheet.Rows[1].Cells[4].Value)
}
