package pipeline

import (
	"fmt"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// Classify assigns the recency/frequency label for one customer using
// an ordered decision list; the first satisfied rule wins. Churn is
// checked before the recency bands, so a churned customer is always
// "Churned" no matter its order count.
func Classify(rec model.RecencyRecord) (model.Segment, string) {
	reason := fmt.Sprintf("recency_days=%d total_orders=%d churned=%t",
		rec.RecencyDays, rec.TotalOrders, rec.IsChurned)

	var segment model.Segment
	switch {
	case rec.IsChurned:
		segment = model.SegmentChurned
	case rec.RecencyDays <= 30 && rec.TotalOrders >= 3:
		segment = model.SegmentLoyal
	case rec.RecencyDays <= 30 && rec.TotalOrders == 2:
		segment = model.SegmentReturning
	case rec.RecencyDays <= 30 && rec.TotalOrders == 1:
		segment = model.SegmentNew
	case rec.RecencyDays >= 31 && rec.RecencyDays <= 90 && rec.TotalOrders >= 2:
		segment = model.SegmentAtRiskReturning
	case rec.RecencyDays >= 31 && rec.RecencyDays <= 90 && rec.TotalOrders == 1:
		segment = model.SegmentAtRiskNew
	default:
		segment = model.SegmentActiveOther
	}
	return segment, reason
}

// SegmentCustomers labels every recency record. The rule partition is
// total: no record is left unlabeled.
func SegmentCustomers(records []model.RecencyRecord) []model.SegmentRecord {
	out := make([]model.SegmentRecord, 0, len(records))
	for _, rec := range records {
		segment, reason := Classify(rec)
		out = append(out, model.SegmentRecord{
			RecencyRecord: rec,
			Segment:       segment,
			Reason:        reason,
		})
	}
	return out
}
