package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/commerce-analytics/internal/export"
	"github.com/sells-group/commerce-analytics/internal/model"
	"github.com/sells-group/commerce-analytics/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(newRouter(st, rate.NewLimiter(rate.Inf, 0)))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_EmptyRelationsReturnEmptyArrays(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/api/summary", "/api/recency", "/api/segments", "/api/revenue", "/api/rollup", "/api/runs"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)

		var rows []json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows), path)
		resp.Body.Close() //nolint:errcheck
		assert.Empty(t, rows, path)
	}
}

func TestServe_SegmentsEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	last := time.Date(2018, time.March, 20, 9, 0, 0, 0, time.UTC)
	rec := model.RecencyRecord{
		CustomerSummary: model.CustomerSummary{
			CustomerID:   "alice",
			FirstOrderTS: last.AddDate(0, -2, 0),
			LastOrderTS:  last,
			TotalOrders:  2,
		},
		RecencyDays: 5,
	}
	require.NoError(t, st.ReplaceDerived(context.Background(), model.Derived{
		Segments: []model.SegmentRecord{{
			RecencyRecord: rec,
			Segment:       model.SegmentReturning,
			Reason:        "recency_days=5 total_orders=2 churned=false",
		}},
		Revenue: []model.OrderRevenue{{OrderID: "o1", TotalPaymentValue: decimal.RequireFromString("42.50")}},
	}))

	resp, err := http.Get(srv.URL + "/api/segments")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []model.SegmentRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].CustomerID)
	assert.Equal(t, model.SegmentReturning, rows[0].Segment)
}

func TestServe_RateLimit(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	// One token, no refill: the second request must be rejected.
	srv := httptest.NewServer(newRouter(st, rate.NewLimiter(rate.Limit(0), 1)))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestValidRelation(t *testing.T) {
	for _, rel := range export.Relations() {
		assert.True(t, validRelation(rel), string(rel))
	}
	assert.False(t, validRelation(export.Relation("bogus")))
}
