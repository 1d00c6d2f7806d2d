// Package store persists the typed input relations, the derived
// relations, and pipeline run bookkeeping. Both backends replace each
// relation wholesale, matching the drop-and-recreate batch model.
package store

import (
	"context"
	"time"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// Store is the persistence interface for the analytics pipeline.
type Store interface {
	// Typed inputs. Each Replace swaps the whole relation in one
	// transaction.
	ReplaceOrders(ctx context.Context, orders []model.Order) error
	ReplacePayments(ctx context.Context, payments []model.Payment) error
	ReplaceCustomers(ctx context.Context, customers []model.Customer) error
	LoadOrders(ctx context.Context) ([]model.Order, error)
	LoadPayments(ctx context.Context) ([]model.Payment, error)

	// Derived relations, replaced together in one transaction so a
	// consumer never observes a half-written run.
	ReplaceDerived(ctx context.Context, derived model.Derived) error
	LoadSummaries(ctx context.Context) ([]model.CustomerSummary, error)
	LoadRecency(ctx context.Context) ([]model.RecencyRecord, error)
	LoadSegments(ctx context.Context) ([]model.SegmentRecord, error)
	LoadRevenue(ctx context.Context) ([]model.OrderRevenue, error)
	LoadRollups(ctx context.Context) ([]model.MonthlyRollup, error)

	// Runs
	CreateRun(ctx context.Context, churnDays int) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, analysisDate time.Time, counts model.RunCounts) error
	FailRun(ctx context.Context, runID string, runErr error) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
