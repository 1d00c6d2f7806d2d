package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersCSV = `order_id,customer_id,order_status,order_purchase_timestamp,order_approved_at,order_delivered_customer_date,order_estimated_delivery_date
o1,alice,delivered,2018-01-05 12:30:00,2018-01-05 13:00:00,2018-01-10 09:00:00,2018-01-15 00:00:00
o2,bob,canceled,not-a-date,,,
o3,,delivered,2018-02-01 08:00:00,,,
`

func TestParseOrders_Typing(t *testing.T) {
	orders, stats, err := ParseOrders(context.Background(), strings.NewReader(ordersCSV))
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, 3, stats.RowsRead)

	o1 := orders[0]
	assert.Equal(t, "o1", o1.ID)
	assert.Equal(t, "alice", o1.CustomerID)
	assert.Equal(t, "delivered", o1.Status)
	require.NotNil(t, o1.PurchaseTS)
	assert.Equal(t, time.Date(2018, time.January, 5, 12, 30, 0, 0, time.UTC), *o1.PurchaseTS)
	require.NotNil(t, o1.DeliveredTS)

	// Unparseable timestamp becomes nil instead of failing the batch.
	o2 := orders[1]
	assert.Nil(t, o2.PurchaseTS)
	assert.Equal(t, 1, stats.FieldsNulled)

	// A row with a null customer identifier still passes through;
	// exclusion is downstream's job.
	o3 := orders[2]
	assert.Empty(t, o3.CustomerID)
	require.NotNil(t, o3.PurchaseTS)
}

func TestParseOrders_MissingValuesAreNil(t *testing.T) {
	csv := "order_id,customer_id,order_status,order_purchase_timestamp\no1,alice,delivered,\n"
	orders, stats, err := ParseOrders(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Nil(t, orders[0].PurchaseTS)
	// Absent is not the same as unparseable.
	assert.Zero(t, stats.FieldsNulled)
}

func TestParseOrders_Idempotent(t *testing.T) {
	first, _, err := ParseOrders(context.Background(), strings.NewReader(ordersCSV))
	require.NoError(t, err)
	second, _, err := ParseOrders(context.Background(), strings.NewReader(ordersCSV))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseOrders_HeaderOnly(t *testing.T) {
	csv := "order_id,customer_id,order_status,order_purchase_timestamp\n"
	orders, stats, err := ParseOrders(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, stats.RowsRead)
}

func TestParseOrders_EmptyFile(t *testing.T) {
	_, _, err := ParseOrders(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header")
}

func TestParsePayments(t *testing.T) {
	csv := `order_id,payment_value
o1,19.90
o1,10.10
o2,abc
,5.00
o3,42.00
`
	payments, stats, err := ParsePayments(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, 5, stats.RowsRead)
	assert.Equal(t, 2, stats.RowsSkipped) // bad amount and missing order id

	assert.Equal(t, "o1", payments[0].OrderID)
	assert.Equal(t, "19.90", payments[0].Value.StringFixed(2))
}

func TestParseCustomers(t *testing.T) {
	csv := `customer_id,customer_city,customer_state
alice,sao paulo,SP
,osasco,SP
bob,rio de janeiro,RJ
`
	customers, stats, err := ParseCustomers(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, 1, stats.RowsSkipped)
	assert.Equal(t, "alice", customers[0].ID)
	assert.Equal(t, "sao paulo", customers[0].City)
	assert.Equal(t, "SP", customers[0].State)
}

func TestStreamCSV_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(" a , b \n"), CSVOptions{TrimSpace: true})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"a", "b"}, rows[0])
}
