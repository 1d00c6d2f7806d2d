package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commerce-analytics/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for
// unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgres_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "running", 90, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", time.Now().UTC(), model.RunCounts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", assert.AnError.Error(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", assert.AnError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2018, time.March, 1, 9, 0, 0, 0, time.UTC)
	countsJSON := []byte(`{"customers":4,"churned":1}`)

	rows := pgxmock.NewRows([]string{"id", "status", "analysis_date", "churn_days", "counts", "error", "started_at", "finished_at"}).
		AddRow("run-1", "complete", (*time.Time)(nil), 90, countsJSON, (*string)(nil), started, (*time.Time)(nil))
	mock.ExpectQuery(`SELECT id, status, analysis_date, churn_days, counts, error, started_at, finished_at`).
		WithArgs(10).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, 4, runs[0].Counts.Customers)
	assert.Equal(t, 1, runs[0].Counts.Churned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplaceOrders_CopiesInTx(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	purchase := time.Date(2018, time.March, 1, 10, 0, 0, 0, time.UTC)
	orders := []model.Order{
		{ID: "o1", CustomerID: "alice", Status: "delivered", PurchaseTS: &purchase},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM orders`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"orders"},
		[]string{"order_id", "customer_id", "order_status", "purchase_ts", "approved_ts", "delivered_ts", "estimated_ts"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceOrders(context.Background(), orders))
	assert.NoError(t, mock.ExpectationsWereMet())
}
