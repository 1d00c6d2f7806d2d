package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// WriteWorkbook writes all five derived relations into one XLSX file,
// one sheet per relation, for direct import into a dashboard tool.
func WriteWorkbook(path string, d model.Derived) error {
	f := xlsx.NewFile()

	if err := addSheet(f, "customer_summary",
		[]string{"customer_id", "first_order_ts", "last_order_ts", "total_orders"},
		func(sheet *xlsx.Sheet) {
			for _, s := range d.Summaries {
				row := sheet.AddRow()
				row.AddCell().Value = s.CustomerID
				row.AddCell().Value = formatTS(s.FirstOrderTS)
				row.AddCell().Value = formatTS(s.LastOrderTS)
				row.AddCell().SetInt(s.TotalOrders)
			}
		}); err != nil {
		return err
	}

	if err := addSheet(f, "customer_recency",
		[]string{"customer_id", "last_order_ts", "total_orders", "recency_days", "is_churned"},
		func(sheet *xlsx.Sheet) {
			for _, r := range d.Recency {
				row := sheet.AddRow()
				row.AddCell().Value = r.CustomerID
				row.AddCell().Value = formatTS(r.LastOrderTS)
				row.AddCell().SetInt(r.TotalOrders)
				row.AddCell().SetInt(r.RecencyDays)
				row.AddCell().SetBool(r.IsChurned)
			}
		}); err != nil {
		return err
	}

	if err := addSheet(f, "customer_segments",
		[]string{"customer_id", "recency_days", "total_orders", "is_churned", "rf_segment", "segment_reason"},
		func(sheet *xlsx.Sheet) {
			for _, s := range d.Segments {
				row := sheet.AddRow()
				row.AddCell().Value = s.CustomerID
				row.AddCell().SetInt(s.RecencyDays)
				row.AddCell().SetInt(s.TotalOrders)
				row.AddCell().SetBool(s.IsChurned)
				row.AddCell().Value = string(s.Segment)
				row.AddCell().Value = s.Reason
			}
		}); err != nil {
		return err
	}

	if err := addSheet(f, "order_revenue",
		[]string{"order_id", "total_payment_value"},
		func(sheet *xlsx.Sheet) {
			for _, r := range d.Revenue {
				row := sheet.AddRow()
				row.AddCell().Value = r.OrderID
				row.AddCell().Value = r.TotalPaymentValue.StringFixed(2)
			}
		}); err != nil {
		return err
	}

	if err := addSheet(f, "monthly_segment_rollup",
		[]string{"year", "month", "rf_segment", "active_customers", "total_orders", "total_revenue"},
		func(sheet *xlsx.Sheet) {
			for _, r := range d.Rollups {
				row := sheet.AddRow()
				row.AddCell().SetInt(r.Year)
				row.AddCell().SetInt(int(r.Month))
				row.AddCell().Value = string(r.Segment)
				row.AddCell().SetInt(r.ActiveCustomers)
				row.AddCell().SetInt(r.TotalOrders)
				row.AddCell().Value = r.TotalRevenue.StringFixed(2)
			}
		}); err != nil {
		return err
	}

	return eris.Wrapf(f.Save(path), "export: save workbook %s", path)
}

func addSheet(f *xlsx.File, name string, header []string, fill func(*xlsx.Sheet)) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}
	headerRow := sheet.AddRow()
	for _, h := range header {
		headerRow.AddCell().Value = h
	}
	fill(sheet)
	return nil
}
