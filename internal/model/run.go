package model

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunCounts summarizes what one pipeline run produced.
type RunCounts struct {
	OrdersRead    int         `json:"orders_read" yaml:"orders_read"`
	PaymentsRead  int         `json:"payments_read" yaml:"payments_read"`
	Customers     int         `json:"customers" yaml:"customers"`
	Churned       int         `json:"churned" yaml:"churned"`
	RevenueOrders int         `json:"revenue_orders" yaml:"revenue_orders"`
	RollupRows    int         `json:"rollup_rows" yaml:"rollup_rows"`
	Audit         RollupAudit `json:"audit" yaml:"audit"`
}

// Run is one recorded pipeline execution.
type Run struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	AnalysisDate *time.Time `json:"analysis_date,omitempty"`
	ChurnDays    int        `json:"churn_days"`
	Counts       RunCounts  `json:"counts"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
