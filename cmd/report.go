package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commerce-analytics/internal/export"
	"github.com/sells-group/commerce-analytics/internal/model"
	"github.com/sells-group/commerce-analytics/internal/store"
)

var (
	reportRelation string
	reportFormat   string
	reportOut      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export derived relations for the dashboard tool",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		derived, err := loadDerived(ctx, st)
		if err != nil {
			return err
		}

		switch reportFormat {
		case "csv":
			rel := export.Relation(reportRelation)
			if !validRelation(rel) {
				return eris.Errorf("unknown relation %q (one of: summary, recency, segments, revenue, rollup)", reportRelation)
			}
			f, err := os.Create(reportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", reportOut)
			}
			defer f.Close() //nolint:errcheck
			if err := export.WriteCSV(f, rel, *derived); err != nil {
				return err
			}
		case "xlsx":
			// The workbook always carries every relation, one per sheet.
			if err := export.WriteWorkbook(reportOut, *derived); err != nil {
				return err
			}
		default:
			return eris.Errorf("unknown format %q (csv or xlsx)", reportFormat)
		}

		zap.L().Info("report written",
			zap.String("format", reportFormat),
			zap.String("out", reportOut),
		)
		return nil
	},
}

func validRelation(rel export.Relation) bool {
	for _, r := range export.Relations() {
		if r == rel {
			return true
		}
	}
	return false
}

// loadDerived pulls all five derived relations from the store.
func loadDerived(ctx context.Context, st store.Store) (*model.Derived, error) {
	var (
		d   model.Derived
		err error
	)
	if d.Summaries, err = st.LoadSummaries(ctx); err != nil {
		return nil, err
	}
	if d.Recency, err = st.LoadRecency(ctx); err != nil {
		return nil, err
	}
	if d.Segments, err = st.LoadSegments(ctx); err != nil {
		return nil, err
	}
	if d.Revenue, err = st.LoadRevenue(ctx); err != nil {
		return nil, err
	}
	if d.Rollups, err = st.LoadRollups(ctx); err != nil {
		return nil, err
	}
	return &d, nil
}

func init() {
	reportCmd.Flags().StringVar(&reportRelation, "relation", "segments", "relation to export (csv only)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "csv", "output format: csv or xlsx")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "output path (required)")
	_ = reportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(reportCmd)
}
