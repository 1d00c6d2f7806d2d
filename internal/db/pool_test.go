package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRowsIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFrom(context.Background(), mock, "orders", []string{"order_id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_CopiesRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"payments"}, []string{"order_id", "payment_value"}).
		WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "payments",
		[]string{"order_id", "payment_value"},
		[][]any{{"o1", "19.90"}, {"o2", "5.00"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_WrapsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"orders"}, []string{"order_id"}).
		WillReturnError(assert.AnError)

	_, err = CopyFrom(context.Background(), mock, "orders", []string{"order_id"}, [][]any{{"o1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO orders")
}
