package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/commerce-analytics/internal/model"
	"github.com/sells-group/commerce-analytics/internal/pipeline"
	"github.com/sells-group/commerce-analytics/internal/store"
)

var runChurnDays int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the analytics pipeline over the ingested data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		churnDays := runChurnDays
		if churnDays <= 0 {
			churnDays = cfg.Pipeline.ChurnThresholdDays
		}

		run, err := st.CreateRun(ctx, churnDays)
		if err != nil {
			return err
		}
		log := zap.L().With(zap.String("run_id", run.ID))
		log.Info("pipeline run started", zap.Int("churn_days", churnDays))

		orders, err := st.LoadOrders(ctx)
		if err != nil {
			return failRun(ctx, st, run.ID, err)
		}
		payments, err := st.LoadPayments(ctx)
		if err != nil {
			return failRun(ctx, st, run.ID, err)
		}

		result, err := pipeline.Run(orders, payments, churnDays)
		if err != nil {
			// Covers the degenerate empty dataset: the run fails
			// explicitly instead of writing empty relations.
			return failRun(ctx, st, run.ID, err)
		}

		if err := st.ReplaceDerived(ctx, result.Derived); err != nil {
			return failRun(ctx, st, run.ID, err)
		}

		counts := result.Counts(len(orders), len(payments))
		if err := st.CompleteRun(ctx, run.ID, result.AnalysisDate, counts); err != nil {
			return err
		}

		if err := writeManifest(cfg.Pipeline.ManifestPath, run.ID, result, counts); err != nil {
			return err
		}

		log.Info("pipeline run complete",
			zap.Time("analysis_date", result.AnalysisDate),
			zap.Int("customers", counts.Customers),
			zap.Int("churned", counts.Churned),
			zap.Int("revenue_orders", counts.RevenueOrders),
			zap.Int("rollup_rows", counts.RollupRows),
			zap.Int("orders_no_revenue", counts.Audit.OrdersNoRevenue),
			zap.Int("orders_no_segment", counts.Audit.OrdersNoSegment),
			zap.Int("orders_no_timestamp", counts.Audit.OrdersNoTimestamp),
		)
		return nil
	},
}

func failRun(ctx context.Context, st store.Store, runID string, runErr error) error {
	if err := st.FailRun(ctx, runID, runErr); err != nil {
		zap.L().Warn("failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
	return runErr
}

// runManifest is the operator-facing YAML summary written after each
// successful run.
type runManifest struct {
	RunID        string          `yaml:"run_id"`
	AnalysisDate string          `yaml:"analysis_date"`
	ChurnDays    int             `yaml:"churn_days"`
	FinishedAt   string          `yaml:"finished_at"`
	Counts       model.RunCounts `yaml:"counts"`
}

func writeManifest(path, runID string, result *pipeline.Result, counts model.RunCounts) error {
	if path == "" {
		return nil
	}
	manifest := runManifest{
		RunID:        runID,
		AnalysisDate: result.AnalysisDate.UTC().Format(time.RFC3339),
		ChurnDays:    result.ChurnDays,
		FinishedAt:   time.Now().UTC().Format(time.RFC3339),
		Counts:       counts,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return eris.Wrap(err, "marshal run manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write run manifest %s", path)
	}
	return nil
}

func init() {
	runCmd.Flags().IntVar(&runChurnDays, "churn-days", 0, "churn threshold in days (default from config)")
	rootCmd.AddCommand(runCmd)
}
