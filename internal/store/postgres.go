package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/commerce-analytics/internal/db"
	"github.com/sells-group/commerce-analytics/internal/model"
)

// PostgresStore implements Store using pgxpool. Whole-relation writes
// go through the COPY protocol.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS orders (
	order_id     TEXT PRIMARY KEY,
	customer_id  TEXT,
	order_status TEXT,
	purchase_ts  TIMESTAMPTZ,
	approved_ts  TIMESTAMPTZ,
	delivered_ts TIMESTAMPTZ,
	estimated_ts TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS payments (
	order_id      TEXT NOT NULL,
	payment_value NUMERIC(14,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	customer_id TEXT PRIMARY KEY,
	city        TEXT,
	state       TEXT
);

CREATE TABLE IF NOT EXISTS customer_summary (
	customer_id    TEXT PRIMARY KEY,
	first_order_ts TIMESTAMPTZ NOT NULL,
	last_order_ts  TIMESTAMPTZ NOT NULL,
	total_orders   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS customer_recency (
	customer_id    TEXT PRIMARY KEY,
	first_order_ts TIMESTAMPTZ NOT NULL,
	last_order_ts  TIMESTAMPTZ NOT NULL,
	total_orders   INTEGER NOT NULL,
	recency_days   INTEGER NOT NULL,
	is_churned     BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS customer_segments (
	customer_id    TEXT PRIMARY KEY,
	first_order_ts TIMESTAMPTZ NOT NULL,
	last_order_ts  TIMESTAMPTZ NOT NULL,
	total_orders   INTEGER NOT NULL,
	recency_days   INTEGER NOT NULL,
	is_churned     BOOLEAN NOT NULL,
	rf_segment     TEXT NOT NULL,
	segment_reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_revenue (
	order_id            TEXT PRIMARY KEY,
	total_payment_value NUMERIC(14,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS monthly_segment_rollup (
	year             INTEGER NOT NULL,
	month            INTEGER NOT NULL,
	rf_segment       TEXT NOT NULL,
	active_customers INTEGER NOT NULL,
	total_orders     INTEGER NOT NULL,
	total_revenue    NUMERIC(16,2) NOT NULL,
	PRIMARY KEY (year, month, rf_segment)
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	analysis_date TIMESTAMPTZ,
	churn_days    INTEGER NOT NULL,
	counts        JSONB,
	error         TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// replaceInTx clears the named tables and refills them inside one
// transaction, so readers never see a partial relation.
func (s *PostgresStore) replaceInTx(ctx context.Context, tables []string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, table := range tables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "postgres: clear %s", table)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) ReplaceOrders(ctx context.Context, orders []model.Order) error {
	return s.replaceInTx(ctx, []string{"orders"}, func(tx pgx.Tx) error {
		rows := make([][]any, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, []any{o.ID, o.CustomerID, o.Status, o.PurchaseTS, o.ApprovedTS, o.DeliveredTS, o.EstimatedTS})
		}
		_, err := db.CopyFrom(ctx, tx, "orders",
			[]string{"order_id", "customer_id", "order_status", "purchase_ts", "approved_ts", "delivered_ts", "estimated_ts"},
			rows)
		return err
	})
}

func (s *PostgresStore) ReplacePayments(ctx context.Context, payments []model.Payment) error {
	return s.replaceInTx(ctx, []string{"payments"}, func(tx pgx.Tx) error {
		rows := make([][]any, 0, len(payments))
		for _, p := range payments {
			rows = append(rows, []any{p.OrderID, p.Value.String()})
		}
		_, err := db.CopyFrom(ctx, tx, "payments", []string{"order_id", "payment_value"}, rows)
		return err
	})
}

func (s *PostgresStore) ReplaceCustomers(ctx context.Context, customers []model.Customer) error {
	return s.replaceInTx(ctx, []string{"customers"}, func(tx pgx.Tx) error {
		rows := make([][]any, 0, len(customers))
		for _, c := range customers {
			rows = append(rows, []any{c.ID, c.City, c.State})
		}
		_, err := db.CopyFrom(ctx, tx, "customers", []string{"customer_id", "city", "state"}, rows)
		return err
	})
}

func (s *PostgresStore) LoadOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, customer_id, order_status, purchase_ts, approved_ts, delivered_ts, estimated_ts
		 FROM orders ORDER BY order_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select orders")
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.PurchaseTS, &o.ApprovedTS, &o.DeliveredTS, &o.EstimatedTS); err != nil {
			return nil, eris.Wrap(err, "postgres: scan order")
		}
		orders = append(orders, o)
	}
	return orders, eris.Wrap(rows.Err(), "postgres: iterate orders")
}

func (s *PostgresStore) LoadPayments(ctx context.Context) ([]model.Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, payment_value::text FROM payments ORDER BY order_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select payments")
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		var value string
		if err := rows.Scan(&p.OrderID, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan payment")
		}
		p.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: payment value %q", value)
		}
		payments = append(payments, p)
	}
	return payments, eris.Wrap(rows.Err(), "postgres: iterate payments")
}

func (s *PostgresStore) ReplaceDerived(ctx context.Context, derived model.Derived) error {
	return s.replaceInTx(ctx, derivedTables, func(tx pgx.Tx) error {
		summaryRows := make([][]any, 0, len(derived.Summaries))
		for _, sum := range derived.Summaries {
			summaryRows = append(summaryRows, []any{sum.CustomerID, sum.FirstOrderTS.UTC(), sum.LastOrderTS.UTC(), sum.TotalOrders})
		}
		if _, err := db.CopyFrom(ctx, tx, "customer_summary",
			[]string{"customer_id", "first_order_ts", "last_order_ts", "total_orders"}, summaryRows); err != nil {
			return err
		}

		recencyRows := make([][]any, 0, len(derived.Recency))
		for _, rec := range derived.Recency {
			recencyRows = append(recencyRows, []any{rec.CustomerID, rec.FirstOrderTS.UTC(), rec.LastOrderTS.UTC(), rec.TotalOrders, rec.RecencyDays, rec.IsChurned})
		}
		if _, err := db.CopyFrom(ctx, tx, "customer_recency",
			[]string{"customer_id", "first_order_ts", "last_order_ts", "total_orders", "recency_days", "is_churned"}, recencyRows); err != nil {
			return err
		}

		segmentRows := make([][]any, 0, len(derived.Segments))
		for _, seg := range derived.Segments {
			segmentRows = append(segmentRows, []any{seg.CustomerID, seg.FirstOrderTS.UTC(), seg.LastOrderTS.UTC(), seg.TotalOrders, seg.RecencyDays, seg.IsChurned, string(seg.Segment), seg.Reason})
		}
		if _, err := db.CopyFrom(ctx, tx, "customer_segments",
			[]string{"customer_id", "first_order_ts", "last_order_ts", "total_orders", "recency_days", "is_churned", "rf_segment", "segment_reason"}, segmentRows); err != nil {
			return err
		}

		revenueRows := make([][]any, 0, len(derived.Revenue))
		for _, rev := range derived.Revenue {
			revenueRows = append(revenueRows, []any{rev.OrderID, rev.TotalPaymentValue.StringFixed(2)})
		}
		if _, err := db.CopyFrom(ctx, tx, "order_revenue",
			[]string{"order_id", "total_payment_value"}, revenueRows); err != nil {
			return err
		}

		rollupRows := make([][]any, 0, len(derived.Rollups))
		for _, roll := range derived.Rollups {
			rollupRows = append(rollupRows, []any{roll.Year, int(roll.Month), string(roll.Segment), roll.ActiveCustomers, roll.TotalOrders, roll.TotalRevenue.StringFixed(2)})
		}
		_, err := db.CopyFrom(ctx, tx, "monthly_segment_rollup",
			[]string{"year", "month", "rf_segment", "active_customers", "total_orders", "total_revenue"}, rollupRows)
		return err
	})
}

func (s *PostgresStore) LoadSummaries(ctx context.Context) ([]model.CustomerSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT customer_id, first_order_ts, last_order_ts, total_orders
		 FROM customer_summary ORDER BY customer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select summaries")
	}
	defer rows.Close()

	var summaries []model.CustomerSummary
	for rows.Next() {
		var sum model.CustomerSummary
		if err := rows.Scan(&sum.CustomerID, &sum.FirstOrderTS, &sum.LastOrderTS, &sum.TotalOrders); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		summaries = append(summaries, sum)
	}
	return summaries, eris.Wrap(rows.Err(), "postgres: iterate summaries")
}

func (s *PostgresStore) LoadRecency(ctx context.Context) ([]model.RecencyRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT customer_id, first_order_ts, last_order_ts, total_orders, recency_days, is_churned
		 FROM customer_recency ORDER BY customer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select recency")
	}
	defer rows.Close()

	var records []model.RecencyRecord
	for rows.Next() {
		var rec model.RecencyRecord
		if err := rows.Scan(&rec.CustomerID, &rec.FirstOrderTS, &rec.LastOrderTS, &rec.TotalOrders, &rec.RecencyDays, &rec.IsChurned); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recency")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate recency")
}

func (s *PostgresStore) LoadSegments(ctx context.Context) ([]model.SegmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT customer_id, first_order_ts, last_order_ts, total_orders, recency_days, is_churned, rf_segment, segment_reason
		 FROM customer_segments ORDER BY customer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select segments")
	}
	defer rows.Close()

	var records []model.SegmentRecord
	for rows.Next() {
		var rec model.SegmentRecord
		var segment string
		if err := rows.Scan(&rec.CustomerID, &rec.FirstOrderTS, &rec.LastOrderTS, &rec.TotalOrders, &rec.RecencyDays, &rec.IsChurned, &segment, &rec.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan segment")
		}
		rec.Segment = model.Segment(segment)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate segments")
}

func (s *PostgresStore) LoadRevenue(ctx context.Context) ([]model.OrderRevenue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, total_payment_value::text FROM order_revenue ORDER BY order_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select revenue")
	}
	defer rows.Close()

	var revenue []model.OrderRevenue
	for rows.Next() {
		var rev model.OrderRevenue
		var value string
		if err := rows.Scan(&rev.OrderID, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan revenue")
		}
		rev.TotalPaymentValue, err = decimal.NewFromString(value)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: revenue value %q", value)
		}
		revenue = append(revenue, rev)
	}
	return revenue, eris.Wrap(rows.Err(), "postgres: iterate revenue")
}

func (s *PostgresStore) LoadRollups(ctx context.Context) ([]model.MonthlyRollup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT year, month, rf_segment, active_customers, total_orders, total_revenue::text
		 FROM monthly_segment_rollup ORDER BY year, month, rf_segment`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select rollups")
	}
	defer rows.Close()

	var rollups []model.MonthlyRollup
	for rows.Next() {
		var roll model.MonthlyRollup
		var month int
		var segment, value string
		if err := rows.Scan(&roll.Year, &month, &segment, &roll.ActiveCustomers, &roll.TotalOrders, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rollup")
		}
		roll.Month = time.Month(month)
		roll.Segment = model.Segment(segment)
		roll.TotalRevenue, err = decimal.NewFromString(value)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: rollup revenue %q", value)
		}
		rollups = append(rollups, roll)
	}
	return rollups, eris.Wrap(rows.Err(), "postgres: iterate rollups")
}

func (s *PostgresStore) CreateRun(ctx context.Context, churnDays int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		ChurnDays: churnDays,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, churn_days, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.ChurnDays, run.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, analysisDate time.Time, counts model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, analysis_date = $2, counts = $3, finished_at = $4 WHERE id = $5`,
		string(model.RunStatusComplete), analysisDate.UTC(), countsJSON, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, analysis_date, churn_days, counts, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var status string
		var counts []byte
		var errMsg *string
		if err := rows.Scan(&run.ID, &status, &run.AnalysisDate, &run.ChurnDays, &counts, &errMsg, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		run.Status = model.RunStatus(status)
		if errMsg != nil {
			run.Error = *errMsg
		}
		if len(counts) > 0 {
			if err := json.Unmarshal(counts, &run.Counts); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal counts for run %s", run.ID)
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
