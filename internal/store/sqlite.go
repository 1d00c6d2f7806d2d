package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS orders (
	order_id     TEXT PRIMARY KEY,
	customer_id  TEXT,
	order_status TEXT,
	purchase_ts  DATETIME,
	approved_ts  DATETIME,
	delivered_ts DATETIME,
	estimated_ts DATETIME
);

CREATE TABLE IF NOT EXISTS payments (
	order_id      TEXT NOT NULL,
	payment_value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	customer_id TEXT PRIMARY KEY,
	city        TEXT,
	state       TEXT
);

CREATE TABLE IF NOT EXISTS customer_summary (
	customer_id    TEXT PRIMARY KEY,
	first_order_ts DATETIME NOT NULL,
	last_order_ts  DATETIME NOT NULL,
	total_orders   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS customer_recency (
	customer_id    TEXT PRIMARY KEY,
	first_order_ts DATETIME NOT NULL,
	last_order_ts  DATETIME NOT NULL,
	total_orders   INTEGER NOT NULL,
	recency_days   INTEGER NOT NULL,
	is_churned     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS customer_segments (
	customer_id    TEXT PRIMARY KEY,
	first_order_ts DATETIME NOT NULL,
	last_order_ts  DATETIME NOT NULL,
	total_orders   INTEGER NOT NULL,
	recency_days   INTEGER NOT NULL,
	is_churned     INTEGER NOT NULL,
	rf_segment     TEXT NOT NULL,
	segment_reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_revenue (
	order_id            TEXT PRIMARY KEY,
	total_payment_value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS monthly_segment_rollup (
	year             INTEGER NOT NULL,
	month            INTEGER NOT NULL,
	rf_segment       TEXT NOT NULL,
	active_customers INTEGER NOT NULL,
	total_orders     INTEGER NOT NULL,
	total_revenue    TEXT NOT NULL,
	PRIMARY KEY (year, month, rf_segment)
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	analysis_date DATETIME,
	churn_days    INTEGER NOT NULL,
	counts        TEXT,
	error         TEXT,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// replaceInTx deletes every row of the named tables and runs fn to
// refill them, all inside one transaction.
func (s *SQLiteStore) replaceInTx(ctx context.Context, tables []string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func nullTime(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return ts.UTC()
}

func (s *SQLiteStore) ReplaceOrders(ctx context.Context, orders []model.Order) error {
	return s.replaceInTx(ctx, []string{"orders"}, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO orders (order_id, customer_id, order_status, purchase_ts, approved_ts, delivered_ts, estimated_ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert order")
		}
		defer stmt.Close()

		for _, o := range orders {
			_, err := stmt.ExecContext(ctx, o.ID, o.CustomerID, o.Status,
				nullTime(o.PurchaseTS), nullTime(o.ApprovedTS), nullTime(o.DeliveredTS), nullTime(o.EstimatedTS))
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert order %s", o.ID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ReplacePayments(ctx context.Context, payments []model.Payment) error {
	return s.replaceInTx(ctx, []string{"payments"}, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO payments (order_id, payment_value) VALUES (?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert payment")
		}
		defer stmt.Close()

		for _, p := range payments {
			if _, err := stmt.ExecContext(ctx, p.OrderID, p.Value.String()); err != nil {
				return eris.Wrapf(err, "sqlite: insert payment for order %s", p.OrderID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ReplaceCustomers(ctx context.Context, customers []model.Customer) error {
	return s.replaceInTx(ctx, []string{"customers"}, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO customers (customer_id, city, state) VALUES (?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert customer")
		}
		defer stmt.Close()

		for _, c := range customers {
			if _, err := stmt.ExecContext(ctx, c.ID, c.City, c.State); err != nil {
				return eris.Wrapf(err, "sqlite: insert customer %s", c.ID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) LoadOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, customer_id, order_status, purchase_ts, approved_ts, delivered_ts, estimated_ts
		 FROM orders ORDER BY order_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select orders")
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var purchase, approved, delivered, estimated sql.NullTime
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &purchase, &approved, &delivered, &estimated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan order")
		}
		o.PurchaseTS = timePtr(purchase)
		o.ApprovedTS = timePtr(approved)
		o.DeliveredTS = timePtr(delivered)
		o.EstimatedTS = timePtr(estimated)
		orders = append(orders, o)
	}
	return orders, eris.Wrap(rows.Err(), "sqlite: iterate orders")
}

func (s *SQLiteStore) LoadPayments(ctx context.Context) ([]model.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, payment_value FROM payments ORDER BY order_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select payments")
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		var value string
		if err := rows.Scan(&p.OrderID, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan payment")
		}
		p.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: payment value %q", value)
		}
		payments = append(payments, p)
	}
	return payments, eris.Wrap(rows.Err(), "sqlite: iterate payments")
}

var derivedTables = []string{
	"customer_summary",
	"customer_recency",
	"customer_segments",
	"order_revenue",
	"monthly_segment_rollup",
}

func (s *SQLiteStore) ReplaceDerived(ctx context.Context, derived model.Derived) error {
	return s.replaceInTx(ctx, derivedTables, func(tx *sql.Tx) error {
		for _, sum := range derived.Summaries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO customer_summary (customer_id, first_order_ts, last_order_ts, total_orders)
				 VALUES (?, ?, ?, ?)`,
				sum.CustomerID, sum.FirstOrderTS.UTC(), sum.LastOrderTS.UTC(), sum.TotalOrders)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert summary %s", sum.CustomerID)
			}
		}
		for _, rec := range derived.Recency {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO customer_recency (customer_id, first_order_ts, last_order_ts, total_orders, recency_days, is_churned)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				rec.CustomerID, rec.FirstOrderTS.UTC(), rec.LastOrderTS.UTC(), rec.TotalOrders, rec.RecencyDays, rec.IsChurned)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert recency %s", rec.CustomerID)
			}
		}
		for _, seg := range derived.Segments {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO customer_segments (customer_id, first_order_ts, last_order_ts, total_orders, recency_days, is_churned, rf_segment, segment_reason)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				seg.CustomerID, seg.FirstOrderTS.UTC(), seg.LastOrderTS.UTC(), seg.TotalOrders, seg.RecencyDays, seg.IsChurned, string(seg.Segment), seg.Reason)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert segment %s", seg.CustomerID)
			}
		}
		for _, rev := range derived.Revenue {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_revenue (order_id, total_payment_value) VALUES (?, ?)`,
				rev.OrderID, rev.TotalPaymentValue.StringFixed(2))
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert revenue %s", rev.OrderID)
			}
		}
		for _, roll := range derived.Rollups {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO monthly_segment_rollup (year, month, rf_segment, active_customers, total_orders, total_revenue)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				roll.Year, int(roll.Month), string(roll.Segment), roll.ActiveCustomers, roll.TotalOrders, roll.TotalRevenue.StringFixed(2))
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert rollup %d-%d %s", roll.Year, roll.Month, roll.Segment)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) LoadSummaries(ctx context.Context) ([]model.CustomerSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer_id, first_order_ts, last_order_ts, total_orders
		 FROM customer_summary ORDER BY customer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select summaries")
	}
	defer rows.Close()

	var summaries []model.CustomerSummary
	for rows.Next() {
		var sum model.CustomerSummary
		if err := rows.Scan(&sum.CustomerID, &sum.FirstOrderTS, &sum.LastOrderTS, &sum.TotalOrders); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		summaries = append(summaries, sum)
	}
	return summaries, eris.Wrap(rows.Err(), "sqlite: iterate summaries")
}

func (s *SQLiteStore) LoadRecency(ctx context.Context) ([]model.RecencyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer_id, first_order_ts, last_order_ts, total_orders, recency_days, is_churned
		 FROM customer_recency ORDER BY customer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select recency")
	}
	defer rows.Close()

	var records []model.RecencyRecord
	for rows.Next() {
		var rec model.RecencyRecord
		if err := rows.Scan(&rec.CustomerID, &rec.FirstOrderTS, &rec.LastOrderTS, &rec.TotalOrders, &rec.RecencyDays, &rec.IsChurned); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recency")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate recency")
}

func (s *SQLiteStore) LoadSegments(ctx context.Context) ([]model.SegmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer_id, first_order_ts, last_order_ts, total_orders, recency_days, is_churned, rf_segment, segment_reason
		 FROM customer_segments ORDER BY customer_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select segments")
	}
	defer rows.Close()

	var records []model.SegmentRecord
	for rows.Next() {
		var rec model.SegmentRecord
		var segment string
		if err := rows.Scan(&rec.CustomerID, &rec.FirstOrderTS, &rec.LastOrderTS, &rec.TotalOrders, &rec.RecencyDays, &rec.IsChurned, &segment, &rec.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan segment")
		}
		rec.Segment = model.Segment(segment)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate segments")
}

func (s *SQLiteStore) LoadRevenue(ctx context.Context) ([]model.OrderRevenue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, total_payment_value FROM order_revenue ORDER BY order_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select revenue")
	}
	defer rows.Close()

	var revenue []model.OrderRevenue
	for rows.Next() {
		var rev model.OrderRevenue
		var value string
		if err := rows.Scan(&rev.OrderID, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan revenue")
		}
		rev.TotalPaymentValue, err = decimal.NewFromString(value)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: revenue value %q", value)
		}
		revenue = append(revenue, rev)
	}
	return revenue, eris.Wrap(rows.Err(), "sqlite: iterate revenue")
}

func (s *SQLiteStore) LoadRollups(ctx context.Context) ([]model.MonthlyRollup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, month, rf_segment, active_customers, total_orders, total_revenue
		 FROM monthly_segment_rollup ORDER BY year, month, rf_segment`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select rollups")
	}
	defer rows.Close()

	var rollups []model.MonthlyRollup
	for rows.Next() {
		var roll model.MonthlyRollup
		var month int
		var segment, value string
		if err := rows.Scan(&roll.Year, &month, &segment, &roll.ActiveCustomers, &roll.TotalOrders, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rollup")
		}
		roll.Month = time.Month(month)
		roll.Segment = model.Segment(segment)
		roll.TotalRevenue, err = decimal.NewFromString(value)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: rollup revenue %q", value)
		}
		rollups = append(rollups, roll)
	}
	return rollups, eris.Wrap(rows.Err(), "sqlite: iterate rollups")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, churnDays int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		ChurnDays: churnDays,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, churn_days, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.ChurnDays, run.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, analysisDate time.Time, counts model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, analysis_date = ?, counts = ?, finished_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), analysisDate.UTC(), string(countsJSON), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, analysis_date, churn_days, counts, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var status string
		var analysisDate, finishedAt sql.NullTime
		var counts, errMsg sql.NullString
		if err := rows.Scan(&run.ID, &status, &analysisDate, &run.ChurnDays, &counts, &errMsg, &run.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		run.Status = model.RunStatus(status)
		run.AnalysisDate = timePtr(analysisDate)
		run.FinishedAt = timePtr(finishedAt)
		run.Error = errMsg.String
		if counts.Valid && counts.String != "" {
			if err := json.Unmarshal([]byte(counts.String), &run.Counts); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal counts for run %s", run.ID)
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	ts := nt.Time.UTC()
	return &ts
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}
