package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reqlens/reqlens/internal/metrics"
	"github.com/reqlens/reqlens/internal/reconciler"
)

type fakeReports struct {
	report *reconciler.Report
}

func (f *fakeReports) Report() *reconciler.Report {
	return f.report
}

type fakeSnapshots struct {
	snapshot *metrics.Snapshot
	err      error
	lastErr  error
}

func (f *fakeSnapshots) Get(maxAge time.Duration, attemptFresh bool, timeout time.Duration) (*metrics.Snapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeSnapshots) LastError() error {
	return f.lastErr
}

type fakeReportCache struct {
	report *reconciler.Report
	err    error
}

func (f *fakeReportCache) GetLatestReport() (*reconciler.Report, error) {
	return f.report, f.err
}

type fakeStore struct {
	requests []*reconciler.MatchedRequest
	err      error

	start int64
	end   int64
}

func (f *fakeStore) GetMatchedRequests(start int64, end int64) ([]*reconciler.MatchedRequest, error) {
	f.start = start
	f.end = end
	return f.requests, f.err
}

func newTestServer(t *testing.T, rp ReportProvider, sp SnapshotProvider, rc ReportCache, store MatchedRequestStore, adminPass string) *httptest.Server {
	t.Helper()

	as, err := NewAdminServer(zap.NewNop(), "test", rp, sp, rc, store, "0", adminPass)
	require.NoError(t, err)

	ts := httptest.NewServer(as.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestAdminServer(t *testing.T) {
	reports := &fakeReports{report: &reconciler.Report{
		Requests: []*reconciler.MatchedRequest{
			{RequestId: "chatcmpl-1", Matched: true},
		},
		UnmatchedIntervals: 2,
	}}

	snapshots := &fakeSnapshots{snapshot: &metrics.Snapshot{
		Timestamp: time.Date(2025, 11, 8, 16, 0, 0, 0, time.UTC),
		Counters: map[string]metrics.Counter{
			metrics.MetricPrefillTime: {Sum: 10, Count: 4},
		},
	}}

	ts := newTestServer(t, reports, snapshots, nil, nil, "")

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("report", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/reporting/report")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		report := &reconciler.Report{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(report))
		require.Len(t, report.Requests, 1)
		assert.Equal(t, "chatcmpl-1", report.Requests[0].RequestId)
		assert.Equal(t, 2, report.UnmatchedIntervals)
	})

	t.Run("requests", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/reporting/requests")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		requests := []*reconciler.MatchedRequest{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&requests))
		require.Len(t, requests, 1)
	})

	t.Run("snapshot", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/metrics/snapshot")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		snapshot := &metrics.Snapshot{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(snapshot))
		assert.Equal(t, 10.0, snapshot.Counters[metrics.MetricPrefillTime].Sum)
	})
}

func TestAdminServerReportCache(t *testing.T) {
	live := &fakeReports{report: &reconciler.Report{
		Requests: []*reconciler.MatchedRequest{{RequestId: "chatcmpl-live"}},
	}}

	t.Run("a cached report is served over the live one", func(t *testing.T) {
		cache := &fakeReportCache{report: &reconciler.Report{
			Requests: []*reconciler.MatchedRequest{{RequestId: "chatcmpl-cached"}},
		}}
		ts := newTestServer(t, live, &fakeSnapshots{}, cache, nil, "")

		resp, err := http.Get(ts.URL + "/api/reporting/report")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		report := &reconciler.Report{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(report))
		require.Len(t, report.Requests, 1)
		assert.Equal(t, "chatcmpl-cached", report.Requests[0].RequestId)
	})

	t.Run("an empty cache falls back to the live report", func(t *testing.T) {
		ts := newTestServer(t, live, &fakeSnapshots{}, &fakeReportCache{}, nil, "")

		resp, err := http.Get(ts.URL + "/api/reporting/report")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		report := &reconciler.Report{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(report))
		require.Len(t, report.Requests, 1)
		assert.Equal(t, "chatcmpl-live", report.Requests[0].RequestId)
	})

	t.Run("a cache error falls back to the live report", func(t *testing.T) {
		cache := &fakeReportCache{err: errors.New("connection refused")}
		ts := newTestServer(t, live, &fakeSnapshots{}, cache, nil, "")

		resp, err := http.Get(ts.URL + "/api/reporting/report")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		report := &reconciler.Report{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(report))
		require.Len(t, report.Requests, 1)
		assert.Equal(t, "chatcmpl-live", report.Requests[0].RequestId)
	})
}

func TestAdminServerMatchedRequests(t *testing.T) {
	reports := &fakeReports{report: &reconciler.Report{}}

	t.Run("time ranged query", func(t *testing.T) {
		store := &fakeStore{requests: []*reconciler.MatchedRequest{{RequestId: "chatcmpl-1"}}}
		ts := newTestServer(t, reports, &fakeSnapshots{}, nil, store, "")

		resp, err := http.Get(ts.URL + "/api/reporting/matched-requests?start=100&end=200")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		requests := []*reconciler.MatchedRequest{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&requests))
		require.Len(t, requests, 1)
		assert.Equal(t, int64(100), store.start)
		assert.Equal(t, int64(200), store.end)
	})

	t.Run("invalid query params", func(t *testing.T) {
		ts := newTestServer(t, reports, &fakeSnapshots{}, nil, &fakeStore{}, "")

		resp, err := http.Get(ts.URL + "/api/reporting/matched-requests?start=abc&end=200")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("store error", func(t *testing.T) {
		store := &fakeStore{err: errors.New("relation does not exist")}
		ts := newTestServer(t, reports, &fakeSnapshots{}, nil, store, "")

		resp, err := http.Get(ts.URL + "/api/reporting/matched-requests?start=100&end=200")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("storage disabled", func(t *testing.T) {
		ts := newTestServer(t, reports, &fakeSnapshots{}, nil, nil, "")

		resp, err := http.Get(ts.URL + "/api/reporting/matched-requests?start=100&end=200")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})
}

func TestAdminServerSnapshotUnavailable(t *testing.T) {
	snapshots := &fakeSnapshots{err: metrics.ErrUnavailable}
	ts := newTestServer(t, &fakeReports{report: &reconciler.Report{}}, snapshots, nil, nil, "")

	resp, err := http.Get(ts.URL + "/api/metrics/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	errResp := &ErrorResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(errResp))
	assert.Equal(t, "snapshot unavailable", errResp.Title)
}

func TestAdminServerApiKey(t *testing.T) {
	ts := newTestServer(t, &fakeReports{report: &reconciler.Report{}}, &fakeSnapshots{}, nil, nil, "secret")

	t.Run("wrong key gets an empty response", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/reporting/report")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Empty(t, body)
	})

	t.Run("correct key passes", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/reporting/report", nil)
		require.NoError(t, err)
		req.Header.Set("X-API-KEY", "secret")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
