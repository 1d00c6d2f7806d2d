package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/commerce-analytics/internal/ingest"
	"github.com/sells-group/commerce-analytics/internal/model"
)

var (
	ingestOrdersPath    string
	ingestPaymentsPath  string
	ingestCustomersPath string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load and type the transaction CSVs into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var (
			orders    []model.Order
			payments  []model.Payment
			customers []model.Customer

			orderStats, paymentStats, customerStats ingest.Stats
		)

		// The three files are independent; parse them concurrently.
		// Loading into the store stays sequential.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			orders, orderStats, err = parseFile(gctx, ingestOrdersPath, ingest.ParseOrders)
			return err
		})
		g.Go(func() error {
			var err error
			payments, paymentStats, err = parseFile(gctx, ingestPaymentsPath, ingest.ParsePayments)
			return err
		})
		g.Go(func() error {
			var err error
			customers, customerStats, err = parseFile(gctx, ingestCustomersPath, ingest.ParseCustomers)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		if err := st.ReplaceOrders(ctx, orders); err != nil {
			return err
		}
		if err := st.ReplacePayments(ctx, payments); err != nil {
			return err
		}
		if err := st.ReplaceCustomers(ctx, customers); err != nil {
			return err
		}

		zap.L().Info("ingest complete",
			zap.Int("orders", len(orders)),
			zap.Int("payments", len(payments)),
			zap.Int("customers", len(customers)),
			zap.Int("order_fields_nulled", orderStats.FieldsNulled),
			zap.Int("payment_rows_skipped", paymentStats.RowsSkipped),
			zap.Int("customer_rows_skipped", customerStats.RowsSkipped),
		)
		return nil
	},
}

// parseFile opens a CSV and runs one of the typed parsers over it.
func parseFile[T any](ctx context.Context, path string, parse func(context.Context, io.Reader) ([]T, ingest.Stats, error)) ([]T, ingest.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ingest.Stats{}, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return parse(ctx, f)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOrdersPath, "orders", "", "path to orders CSV (required)")
	ingestCmd.Flags().StringVar(&ingestPaymentsPath, "payments", "", "path to payments CSV (required)")
	ingestCmd.Flags().StringVar(&ingestCustomersPath, "customers", "", "path to customers CSV (required)")
	_ = ingestCmd.MarkFlagRequired("orders")
	_ = ingestCmd.MarkFlagRequired("payments")
	_ = ingestCmd.MarkFlagRequired("customers")
	rootCmd.AddCommand(ingestCmd)
}
